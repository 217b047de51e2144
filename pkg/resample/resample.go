// Package resample recomputes voxel values on a new grid. Given a target
// affine and shape, each target voxel is mapped into the source grid through
// the composition of the inverted source affine with the target affine, and
// the value is interpolated from the source data. Voxels falling outside the
// source grid are filled with zero.
package resample

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"

	"volconform/pkg/geometry"
	"volconform/pkg/volume"
)

// Interpolation selects the sampling kernel.
type Interpolation int

const (
	// Trilinear is the default continuous kernel.
	Trilinear Interpolation = iota

	// Nearest copies the closest source voxel and never introduces new
	// intensity values, which matters for label-like or later-binarized data.
	Nearest
)

// ParseInterpolation maps a configuration string to a kernel.
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "", "linear", "trilinear", "continuous":
		return Trilinear, nil
	case "nearest":
		return Nearest, nil
	default:
		return Trilinear, fmt.Errorf("unknown interpolation %q", s)
	}
}

// Resampler resamples volumetric images onto target grids. Work is split
// into z-slabs processed by Workers goroutines.
type Resampler struct {
	Workers int
}

// New returns a Resampler using all available CPU cores.
func New() *Resampler {
	return &Resampler{Workers: runtime.NumCPU()}
}

// Resample maps img onto (targetAffine, targetShape). Axes beyond the third
// are preserved and resampled volume by volume. The returned image carries a
// copy of the target affine and the source image's unit.
func (r *Resampler) Resample(img *volume.Image, targetAffine *mat.Dense, targetShape [3]int, interp Interpolation) (*volume.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if err := geometry.ValidateAffine(targetAffine); err != nil {
		return nil, err
	}
	for i, d := range targetShape {
		if d <= 0 {
			return nil, fmt.Errorf("resample: target axis %d has non-positive extent %d", i, d)
		}
	}

	inv, err := geometry.InvertAffine(img.Affine)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	// Maps target voxel indices to source voxel indices.
	vox := geometry.Mul(inv, targetAffine)

	outShape := make([]int, len(img.Shape))
	copy(outShape, img.Shape)
	for i := 0; i < 3; i++ {
		outShape[i] = targetShape[i]
	}
	outLen := 1
	for _, d := range outShape {
		outLen *= d
	}

	out := &volume.Image{
		Data:   make([]float64, outLen),
		Shape:  outShape,
		Affine: geometry.CloneAffine(targetAffine),
		Unit:   img.Unit,
	}

	srcShape := img.Shape3()
	volLen := targetShape[0] * targetShape[1] * targetShape[2]
	for t := 0; t < img.NumVolumes(); t++ {
		r.resampleVolume(img.Volume(t), srcShape, out.Data[t*volLen:(t+1)*volLen], targetShape, vox, interp)
	}
	return out, nil
}

func (r *Resampler) resampleVolume(src []float64, srcShape [3]int, dst []float64, dstShape [3]int, vox *mat.Dense, interp Interpolation) {
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > dstShape[2] {
		workers = dstShape[2]
	}

	slabSize := (dstShape[2] + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		z0 := w * slabSize
		z1 := z0 + slabSize
		if z1 > dstShape[2] {
			z1 = dstShape[2]
		}
		if z0 >= z1 {
			break
		}

		wg.Add(1)
		go func(z0, z1 int) {
			defer wg.Done()
			for z := z0; z < z1; z++ {
				for y := 0; y < dstShape[1]; y++ {
					for x := 0; x < dstShape[0]; x++ {
						sx, sy, sz := mapIndex(vox, float64(x), float64(y), float64(z))
						var v float64
						if interp == Nearest {
							v = sampleNearest(src, srcShape, sx, sy, sz)
						} else {
							v = sampleTrilinear(src, srcShape, sx, sy, sz)
						}
						dst[x+dstShape[0]*(y+dstShape[1]*z)] = v
					}
				}
			}
		}(z0, z1)
	}
	wg.Wait()
}

func mapIndex(vox *mat.Dense, x, y, z float64) (float64, float64, float64) {
	sx := vox.At(0, 0)*x + vox.At(0, 1)*y + vox.At(0, 2)*z + vox.At(0, 3)
	sy := vox.At(1, 0)*x + vox.At(1, 1)*y + vox.At(1, 2)*z + vox.At(1, 3)
	sz := vox.At(2, 0)*x + vox.At(2, 1)*y + vox.At(2, 2)*z + vox.At(2, 3)
	return sx, sy, sz
}

func sampleNearest(src []float64, shape [3]int, x, y, z float64) float64 {
	xi := int(math.Round(x))
	yi := int(math.Round(y))
	zi := int(math.Round(z))
	if xi < 0 || yi < 0 || zi < 0 || xi >= shape[0] || yi >= shape[1] || zi >= shape[2] {
		return 0
	}
	return src[xi+shape[0]*(yi+shape[1]*zi)]
}

func sampleTrilinear(src []float64, shape [3]int, x, y, z float64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	z0 := int(math.Floor(z))
	fx := x - float64(x0)
	fy := y - float64(y0)
	fz := z - float64(z0)

	var acc float64
	for dz := 0; dz < 2; dz++ {
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				xi, yi, zi := x0+dx, y0+dy, z0+dz
				if xi < 0 || yi < 0 || zi < 0 || xi >= shape[0] || yi >= shape[1] || zi >= shape[2] {
					continue
				}
				wx := 1 - fx
				if dx == 1 {
					wx = fx
				}
				wy := 1 - fy
				if dy == 1 {
					wy = fy
				}
				wz := 1 - fz
				if dz == 1 {
					wz = fz
				}
				acc += wx * wy * wz * src[xi+shape[0]*(yi+shape[1]*zi)]
			}
		}
	}
	return acc
}
