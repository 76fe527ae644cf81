// Package visualization renders scalar voxel maps of the energy state as
// grayscale slice images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"gtenergy/pkg/volume"
)

// Viewer holds one scalar map over a voxel grid
type Viewer struct {
	// data is the map in flat z*nx*ny + y*nx + x order
	data []float64
	dims [3]int

	// lo and hi are mapped to black and white
	lo, hi float64
}

// NewViewer creates a viewer over data, scaled between its minimum and maximum
func NewViewer(data []float64, dims [3]int) (*Viewer, error) {
	if err := volume.CheckDims(dims); err != nil {
		return nil, err
	}
	if len(data) != dims[0]*dims[1]*dims[2] {
		return nil, fmt.Errorf("map has %d values, grid %v needs %d", len(data), dims, dims[0]*dims[1]*dims[2])
	}
	v := &Viewer{data: data, dims: dims}
	v.lo, v.hi = floats.Min(data), floats.Max(data)
	return v, nil
}

// FieldViewer creates a viewer over component c of f
func FieldViewer(f *volume.Field, c int) (*Viewer, error) {
	if c < 0 || c >= f.Components() {
		return nil, fmt.Errorf("component %d out of range [0,%d)", c, f.Components())
	}
	return NewViewer(f.Component(c), f.Dims())
}

// SetRange fixes the values mapped to black and white
func (v *Viewer) SetRange(lo, hi float64) {
	v.lo, v.hi = lo, hi
}

// Range returns the values mapped to black and white
func (v *Viewer) Range() (lo, hi float64) { return v.lo, v.hi }

func (v *Viewer) gray(value float64) color.Gray16 {
	span := v.hi - v.lo
	if !(span > 0) || math.IsNaN(value) {
		return color.Gray16{}
	}
	s := (value - v.lo) / span
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, s*65535)))}
}

// ExtractSlice extracts a 2D slice perpendicular to axis at index position
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	nx, ny, nz := v.dims[0], v.dims[1], v.dims[2]
	at := func(x, y, z int) float64 { return v.data[z*nx*ny+y*nx+x] }

	var img *image.Gray16
	switch strings.ToLower(axis) {
	case "x":
		if position >= nx {
			return nil, fmt.Errorf("position %d exceeds width %d", position, nx)
		}
		img = image.NewGray16(image.Rect(0, 0, nz, ny))
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				img.SetGray16(z, y, v.gray(at(position, y, z)))
			}
		}

	case "y":
		if position >= ny {
			return nil, fmt.Errorf("position %d exceeds height %d", position, ny)
		}
		img = image.NewGray16(image.Rect(0, 0, nx, nz))
		for z := 0; z < nz; z++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, z, v.gray(at(x, position, z)))
			}
		}

	case "z":
		if position >= nz {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, nz)
		}
		img = image.NewGray16(image.Rect(0, 0, nx, ny))
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, y, v.gray(at(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice writes img as PNG, or as JPEG when filename ends in .jpg or .jpeg
func SaveSlice(img image.Image, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		return png.Encode(file, img)
	}
}

// SaveSliceSequence writes every slice along axis to outputDir as
// <name>_<axis>_NNN.png
func (v *Viewer) SaveSliceSequence(axis, name, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var n int
	switch strings.ToLower(axis) {
	case "x":
		n = v.dims[0]
	case "y":
		n = v.dims[1]
	case "z":
		n = v.dims[2]
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%03d.png", name, strings.ToLower(axis), pos))
		if err := SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
