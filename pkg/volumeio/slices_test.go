package volumeio

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"spotmatch/internal/models"
	"spotmatch/pkg/matching"
)

// writeSlice saves a grayscale PNG whose pixel value is given by pattern
func writeSlice(t *testing.T, path string, width, height int, pattern func(x, y int) uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create slice file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode slice: %v", err)
	}
}

// TestLoadSliceStack checks ordering, shape and intensity scaling
func TestLoadSliceStack(t *testing.T) {
	dir := t.TempDir()
	// Written out of order; slice_10 must come last
	for _, z := range []int{10, 2, 1} {
		value := uint16(z * 1000)
		writeSlice(t, filepath.Join(dir, "slice_"+strconv.Itoa(z)+".png"), 4, 3, func(x, y int) uint16 {
			return value + uint16(x)
		})
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatalf("Failed to write extra file: %v", err)
	}

	vol, err := LoadSliceStack(dir)
	if err != nil {
		t.Fatalf("Failed to load stack: %v", err)
	}

	want := []int{3, 3, 4}
	for i := range want {
		if vol.Shape[i] != want[i] {
			t.Fatalf("Expected shape %v, got %v", want, vol.Shape)
		}
	}
	for z, n := range []int{1, 2, 10} {
		got := vol.At(z, 1, 2)
		expected := float64(n*1000+2) / 65535.0
		if got != expected {
			t.Errorf("Slice %d: expected %f, got %f", z, expected, got)
		}
	}
}

// TestLoadSliceStackErrors covers empty directories and mismatched slices
func TestLoadSliceStackErrors(t *testing.T) {
	if _, err := LoadSliceStack(t.TempDir()); !errors.Is(err, ErrNoSlices) {
		t.Errorf("Expected ErrNoSlices, got %v", err)
	}

	dir := t.TempDir()
	writeSlice(t, filepath.Join(dir, "a1.png"), 4, 4, func(x, y int) uint16 { return 0 })
	writeSlice(t, filepath.Join(dir, "a2.png"), 5, 4, func(x, y int) uint16 { return 0 })
	if _, err := LoadSliceStack(dir); err == nil {
		t.Error("Expected an error for slices of different size")
	}

	if _, err := LoadSliceStack(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected an error for a missing directory")
	}
}

// TestExtractNumber verifies numeric ordering keys
func TestExtractNumber(t *testing.T) {
	cases := map[string]int{
		"slice_007.jpg":  7,
		"/tmp/img12.png": 12,
		"no_digits.jpg":  0,
		"z3_t4.png":      34,
	}
	for name, want := range cases {
		if got := extractNumber(name); got != want {
			t.Errorf("extractNumber(%q): expected %d, got %d", name, want, got)
		}
	}
}

// TestSaveAndLoadMatches writes a result and reads it back
func TestSaveAndLoadMatches(t *testing.T) {
	res := &matching.Result{
		A:     models.PointSet{{1, 2, 3}, {4, 5, 6}},
		B:     models.PointSet{{1, 2, 4}, {4, 5, 7}},
		Pairs: []models.Pair{{A: 0, B: 3}, {A: 2, B: 1}},
	}
	path := filepath.Join(t.TempDir(), "out", "matches.yaml")

	if err := SaveMatches(path, res); err != nil {
		t.Fatalf("Failed to save matches: %v", err)
	}
	mf, err := LoadMatches(path)
	if err != nil {
		t.Fatalf("Failed to load matches: %v", err)
	}
	if mf.Count != 2 {
		t.Errorf("Expected count 2, got %d", mf.Count)
	}
	if mf.Moving[1][2] != 7 {
		t.Errorf("Expected moving z 7, got %f", mf.Moving[1][2])
	}
	if mf.Indices[0].B != 3 {
		t.Errorf("Expected index 3, got %d", mf.Indices[0].B)
	}
}
