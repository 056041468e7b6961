// Package volumeio loads image stacks into volumes and writes match results.
package volumeio

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"spotmatch/internal/models"
	"spotmatch/pkg/matching"
)

// ErrNoSlices is returned when a directory holds no readable slice images
var ErrNoSlices = errors.New("no slice images found")

// LoadSliceStack reads every JPEG or PNG image in dir, orders them by the
// number in their file name, and stacks them into a volume of shape
// (slices, height, width). Intensities are scaled to [0, 1].
func LoadSliceStack(dir string) (*models.Volume, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var imageFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			imageFiles = append(imageFiles, entry.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSlices, dir)
	}

	// Slices must stay in acquisition order
	sort.SliceStable(imageFiles, func(i, j int) bool {
		return extractNumber(imageFiles[i]) < extractNumber(imageFiles[j])
	})

	var vol *models.Volume
	var width, height int
	for z, filename := range imageFiles {
		img, err := loadImage(filepath.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", filename, err)
		}

		bounds := img.Bounds()
		if vol == nil {
			width, height = bounds.Dx(), bounds.Dy()
			vol = models.NewVolume(len(imageFiles), height, width)
		} else if bounds.Dx() != width || bounds.Dy() != height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d", filename, bounds.Dx(), bounds.Dy(), width, height)
		}

		plane := vol.Data[z*width*height : (z+1)*width*height]
		imageToFloat(img, plane)
	}
	return vol, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// loadImage decodes an image file of any registered format
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// imageToFloat writes the red channel of img into dst, row by row
func imageToFloat(img image.Image, dst []float64) {
	bounds := img.Bounds()
	width := bounds.Dx()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			// Convert 16-bit color to float64 (0-1 range)
			dst[(y-bounds.Min.Y)*width+(x-bounds.Min.X)] = float64(r) / 65535.0
		}
	}
}

// MatchFile is the on-disk form of a match result
type MatchFile struct {
	Count   int             `yaml:"count"`
	Fixed   models.PointSet `yaml:"fixed"`
	Moving  models.PointSet `yaml:"moving"`
	Indices []models.Pair   `yaml:"indices"`
}

// SaveMatches writes the correspondences as YAML, fixed points first
func SaveMatches(path string, res *matching.Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}
	data, err := yaml.Marshal(MatchFile{
		Count:   res.Len(),
		Fixed:   res.A,
		Moving:  res.B,
		Indices: res.Pairs,
	})
	if err != nil {
		return fmt.Errorf("error marshaling matches: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing matches: %w", err)
	}
	return nil
}

// LoadMatches reads a file written by SaveMatches
func LoadMatches(path string) (*MatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf MatchFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("error parsing matches: %w", err)
	}
	return &mf, nil
}
