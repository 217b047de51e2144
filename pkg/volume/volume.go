// Package volume defines the in-memory representation of a volumetric image:
// a flat voxel array, a 4x4 voxel-to-world affine, and the spatial unit the
// affine is expressed in. Images are treated as immutable-until-replaced;
// operations that change geometry return a new Image rather than mutating
// the receiver.
package volume

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"volconform/pkg/geometry"
)

// Unit identifies the physical unit of the affine's spatial axes.
type Unit int

const (
	// UnitUnknown means the source file did not report a spatial unit.
	// By convention it is treated as millimeters wherever a unit-dependent
	// decision has to be made; callers should surface that assumption.
	UnitUnknown Unit = iota
	UnitMeter
	UnitMillimeter
	UnitMicron
)

// String returns the lowercase unit name.
func (u Unit) String() string {
	switch u {
	case UnitMeter:
		return "meter"
	case UnitMillimeter:
		return "millimeter"
	case UnitMicron:
		return "micron"
	default:
		return "unknown"
	}
}

// Image is a volumetric image: voxel data, grid shape, voxel-to-world affine
// and the spatial unit of that affine.
//
// Data is stored x-fastest, matching the on-disk NIfTI layout:
//
//	idx = x + Shape[0]*(y + Shape[1]*(z + Shape[2]*t))
//
// Shape has at least 3 entries; entries beyond the third are non-spatial
// (typically time).
type Image struct {
	Data   []float64
	Shape  []int
	Affine *mat.Dense
	Unit   Unit
}

// New constructs an Image and validates its invariants: at least 3 axes,
// data length matching the shape product, and a well-formed 4x4 affine with
// homogeneous bottom row.
func New(data []float64, shape []int, affine *mat.Dense, unit Unit) (*Image, error) {
	img := &Image{Data: data, Shape: shape, Affine: affine, Unit: unit}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Validate checks the structural invariants of the image.
func (im *Image) Validate() error {
	if len(im.Shape) < 3 {
		return &DimensionalityError{NDim: len(im.Shape)}
	}
	n := 1
	for i, d := range im.Shape {
		if d <= 0 {
			return fmt.Errorf("volume: axis %d has non-positive extent %d", i, d)
		}
		n *= d
	}
	if n != len(im.Data) {
		return fmt.Errorf("volume: shape %v implies %d voxels, data has %d", im.Shape, n, len(im.Data))
	}
	if err := geometry.ValidateAffine(im.Affine); err != nil {
		return fmt.Errorf("volume: %w", err)
	}
	return nil
}

// NDim returns the number of axes.
func (im *Image) NDim() int { return len(im.Shape) }

// Shape3 returns the first three (spatial) axis extents.
func (im *Image) Shape3() [3]int {
	return [3]int{im.Shape[0], im.Shape[1], im.Shape[2]}
}

// NumVolumes returns the number of 3-D volumes held by the image: 1 for a
// 3-D image, the product of the trailing axes otherwise.
func (im *Image) NumVolumes() int {
	n := 1
	for _, d := range im.Shape[3:] {
		n *= d
	}
	return n
}

// VolumeLen returns the number of voxels in one 3-D volume.
func (im *Image) VolumeLen() int {
	return im.Shape[0] * im.Shape[1] * im.Shape[2]
}

// Volume returns the data of the t-th 3-D volume as a subslice of Data.
// The returned slice aliases the image's storage.
func (im *Image) Volume(t int) []float64 {
	vl := im.VolumeLen()
	return im.Data[t*vl : (t+1)*vl]
}

// Zooms returns the voxel spacing along the first three axes, derived from
// the column norms of the affine's linear part.
func (im *Image) Zooms() [3]float64 {
	return geometry.ZoomsOf(im.Affine)
}

// Clone returns a deep copy of the image.
func (im *Image) Clone() *Image {
	data := make([]float64, len(im.Data))
	copy(data, im.Data)
	shape := make([]int, len(im.Shape))
	copy(shape, im.Shape)
	return &Image{
		Data:   data,
		Shape:  shape,
		Affine: geometry.CloneAffine(im.Affine),
		Unit:   im.Unit,
	}
}

// Squeezed returns an image with all size-1 axes beyond the third removed.
// The data and affine are shared with the receiver; only the shape changes.
// Squeezing never drops a spatial axis and never reorders data.
func (im *Image) Squeezed() *Image {
	shape := make([]int, 0, len(im.Shape))
	shape = append(shape, im.Shape[:3]...)
	for _, d := range im.Shape[3:] {
		if d != 1 {
			shape = append(shape, d)
		}
	}
	if len(shape) == len(im.Shape) {
		return im
	}
	return &Image{Data: im.Data, Shape: shape, Affine: im.Affine, Unit: im.Unit}
}

// Idx returns the flat index of voxel (x, y, z) in the first volume.
func (im *Image) Idx(x, y, z int) int {
	return x + im.Shape[0]*(y+im.Shape[1]*z)
}
