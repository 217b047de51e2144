// Package preview extracts 2-D quality-control slices from volumetric
// images and saves them as JPEG files, so a conformed or merged series can
// be eyeballed without a full viewer.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"volconform/pkg/volume"
)

// Extractor renders grayscale slices from the first volume of an image.
// Intensities are windowed to the volume's min/max range.
type Extractor struct {
	img    *volume.Image
	lo, hi float64
}

// New creates an Extractor for img.
func New(img *volume.Image) *Extractor {
	e := &Extractor{img: img}
	data := img.Volume(0)
	if len(data) > 0 {
		e.lo, e.hi = data[0], data[0]
		for _, v := range data {
			if v < e.lo {
				e.lo = v
			}
			if v > e.hi {
				e.hi = v
			}
		}
	}
	return e
}

func (e *Extractor) gray(v float64) color.Gray16 {
	if e.hi <= e.lo {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16((v - e.lo) / (e.hi - e.lo) * 65535)}
}

// Slice extracts the 2-D slice at position pos along the given axis
// ("x", "y" or "z") of the first volume.
func (e *Extractor) Slice(axis string, pos int) (image.Image, error) {
	s := e.img.Shape3()
	data := e.img.Volume(0)

	switch axis {
	case "x", "X":
		if pos < 0 || pos >= s[0] {
			return nil, fmt.Errorf("position %d out of range for axis x (size %d)", pos, s[0])
		}
		img := image.NewGray16(image.Rect(0, 0, s[1], s[2]))
		for z := 0; z < s[2]; z++ {
			for y := 0; y < s[1]; y++ {
				img.SetGray16(y, z, e.gray(data[pos+s[0]*(y+s[1]*z)]))
			}
		}
		return img, nil

	case "y", "Y":
		if pos < 0 || pos >= s[1] {
			return nil, fmt.Errorf("position %d out of range for axis y (size %d)", pos, s[1])
		}
		img := image.NewGray16(image.Rect(0, 0, s[0], s[2]))
		for z := 0; z < s[2]; z++ {
			for x := 0; x < s[0]; x++ {
				img.SetGray16(x, z, e.gray(data[x+s[0]*(pos+s[1]*z)]))
			}
		}
		return img, nil

	case "z", "Z":
		if pos < 0 || pos >= s[2] {
			return nil, fmt.Errorf("position %d out of range for axis z (size %d)", pos, s[2])
		}
		img := image.NewGray16(image.Rect(0, 0, s[0], s[1]))
		for y := 0; y < s[1]; y++ {
			for x := 0; x < s[0]; x++ {
				img.SetGray16(x, y, e.gray(data[x+s[0]*(y+s[1]*pos)]))
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// SaveMidSlices writes the middle slice along each axis to dir as
// "<stem>_<axis>.jpg" and returns the written paths.
func (e *Extractor) SaveMidSlices(dir, stem string, quality int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	s := e.img.Shape3()
	mids := map[string]int{"x": s[0] / 2, "y": s[1] / 2, "z": s[2] / 2}

	var paths []string
	for _, axis := range []string{"x", "y", "z"} {
		img, err := e.Slice(axis, mids[axis])
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.jpg", stem, axis))
		if err := saveJPEG(img, path, quality); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func saveJPEG(img image.Image, path string, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return jpeg.Encode(f, img, &jpeg.Options{Quality: quality})
}
