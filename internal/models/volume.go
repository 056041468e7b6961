package models

import (
	"fmt"
)

// Volume is an n-dimensional image stored as a flat array in row-major order
// (the last axis varies fastest).
type Volume struct {
	// Data holds the voxel intensities
	Data []float64

	// Shape is the extent of every axis in voxels
	Shape []int
}

// NewVolume allocates a zero-filled volume with the given shape
func NewVolume(shape ...int) *Volume {
	return &Volume{
		Data:  make([]float64, product(shape)),
		Shape: append([]int(nil), shape...),
	}
}

// NewVolumeFromData wraps data in a volume, checking that its length matches the shape
func NewVolumeFromData(data []float64, shape ...int) (*Volume, error) {
	if n := product(shape); n != len(data) {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d voxels)", len(data), shape, n)
	}
	return &Volume{Data: data, Shape: append([]int(nil), shape...)}, nil
}

// NDim returns the number of axes
func (v *Volume) NDim() int { return len(v.Shape) }

// Len returns the number of voxels
func (v *Volume) Len() int { return len(v.Data) }

// Offset converts a multi-index to a position in Data. The index is not
// bounds checked.
func (v *Volume) Offset(idx ...int) int {
	off := 0
	for axis, i := range idx {
		off = off*v.Shape[axis] + i
	}
	return off
}

// At returns the voxel at the given multi-index
func (v *Volume) At(idx ...int) float64 {
	return v.Data[v.Offset(idx...)]
}

// Set stores a voxel value at the given multi-index
func (v *Volume) Set(value float64, idx ...int) {
	v.Data[v.Offset(idx...)] = value
}

// Contains reports whether idx lies inside the volume
func (v *Volume) Contains(idx ...int) bool {
	if len(idx) != len(v.Shape) {
		return false
	}
	for axis, i := range idx {
		if i < 0 || i >= v.Shape[axis] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	return &Volume{
		Data:  append([]float64(nil), v.Data...),
		Shape: append([]int(nil), v.Shape...),
	}
}

// Strides returns the row-major stride of every axis
func (v *Volume) Strides() []int {
	strides := make([]int, len(v.Shape))
	s := 1
	for axis := len(v.Shape) - 1; axis >= 0; axis-- {
		strides[axis] = s
		s *= v.Shape[axis]
	}
	return strides
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
