// Package geometry provides the affine and shape arithmetic shared by the
// grid-conforming pipeline: per-axis extrema over a series, tolerance-aware
// spacing comparison, and 4x4 voxel-to-world affine construction and
// manipulation. All functions are pure and perform no I/O.
//
// Affines are 4x4 gonum matrices: a 3x3 linear part (rotation, scale, shear),
// a 3x1 translation, and a fixed homogeneous bottom row [0 0 0 1].
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// ValidateAffine checks that a is a 4x4 matrix with the homogeneous bottom
// row [0 0 0 1].
func ValidateAffine(a *mat.Dense) error {
	if a == nil {
		return fmt.Errorf("affine is nil")
	}
	r, c := a.Dims()
	if r != 4 || c != 4 {
		return fmt.Errorf("affine must be 4x4, got %dx%d", r, c)
	}
	for j := 0; j < 3; j++ {
		if a.At(3, j) != 0 {
			return fmt.Errorf("affine bottom row must be [0 0 0 1]")
		}
	}
	if a.At(3, 3) != 1 {
		return fmt.Errorf("affine bottom row must be [0 0 0 1]")
	}
	return nil
}

// IdentityAffine returns a new 4x4 identity affine.
func IdentityAffine() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		a.Set(i, i, 1)
	}
	return a
}

// DiagAffine returns a 4x4 affine whose linear part is diag(z) with zero
// translation.
func DiagAffine(z [3]float64) *mat.Dense {
	a := IdentityAffine()
	for i := 0; i < 3; i++ {
		a.Set(i, i, z[i])
	}
	return a
}

// CloneAffine returns a copy of a.
func CloneAffine(a *mat.Dense) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	out.Copy(a)
	return out
}

// Translation returns the translation column of the affine.
func Translation(a *mat.Dense) [3]float64 {
	return [3]float64{a.At(0, 3), a.At(1, 3), a.At(2, 3)}
}

// SetTranslation overwrites the translation column of the affine in place.
func SetTranslation(a *mat.Dense, t [3]float64) {
	for i := 0; i < 3; i++ {
		a.Set(i, 3, t[i])
	}
}

// ZoomsOf returns the voxel spacing encoded by the affine: the Euclidean
// norm of each column of the 3x3 linear part.
func ZoomsOf(a *mat.Dense) [3]float64 {
	var z [3]float64
	for j := 0; j < 3; j++ {
		var s float64
		for i := 0; i < 3; i++ {
			v := a.At(i, j)
			s += v * v
		}
		z[j] = math.Sqrt(s)
	}
	return z
}

// ScaleLinear returns a new affine whose linear part is the linear part of a
// multiplied on the right by diag(f). The translation is carried over
// unchanged. This rescales the voxel spacing along each axis by f without
// moving the grid origin.
func ScaleLinear(a *mat.Dense, f [3]float64) *mat.Dense {
	out := CloneAffine(a)
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			out.Set(i, j, a.At(i, j)*f[j])
		}
	}
	return out
}

// InvertAffine returns the inverse of the affine. Singular affines (zero
// spacing on some axis) are reported as an error.
func InvertAffine(a *mat.Dense) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return nil, fmt.Errorf("affine is not invertible: %w", err)
	}
	return &inv, nil
}

// Mul returns the 4x4 product a*b.
func Mul(a, b *mat.Dense) *mat.Dense {
	out := mat.NewDense(4, 4, nil)
	out.Mul(a, b)
	return out
}

// Apply maps a voxel coordinate through the affine into world space.
func Apply(a *mat.Dense, p [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = a.At(i, 0)*p[0] + a.At(i, 1)*p[1] + a.At(i, 2)*p[2] + a.At(i, 3)
	}
	return out
}

// MaxShape returns the per-axis maximum over a sequence of shapes. Using the
// maximum guarantees no input's extent is clipped by the common grid.
func MaxShape(shapes ...[3]int) [3]int {
	var out [3]int
	for i, s := range shapes {
		for j := 0; j < 3; j++ {
			if i == 0 || s[j] > out[j] {
				out[j] = s[j]
			}
		}
	}
	return out
}

// MinZooms returns the per-axis minimum over a sequence of spacings. Using
// the minimum guarantees the finest resolution in the series is kept.
func MinZooms(zooms ...[3]float64) [3]float64 {
	var out [3]float64
	for i, z := range zooms {
		for j := 0; j < 3; j++ {
			if i == 0 || z[j] < out[j] {
				out[j] = z[j]
			}
		}
	}
	return out
}

// AllCloseAbs reports whether each component of a is within atol of the
// corresponding component of b. Differences of exactly atol count as close,
// so a spacing delta at the tolerance boundary does not trigger rescaling.
func AllCloseAbs(a, b [3]float64, atol float64) bool {
	for i := 0; i < 3; i++ {
		if !scalar.EqualWithinAbs(a[i], b[i], atol) {
			return false
		}
	}
	return true
}

// AffineAllClose reports whether every entry of a is within atol of the
// corresponding entry of b. The comparison is inclusive, like AllCloseAbs.
func AffineAllClose(a, b *mat.Dense, atol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if !scalar.EqualWithinAbs(a.At(i, j), b.At(i, j), atol) {
				return false
			}
		}
	}
	return true
}

// RoundZooms rounds each spacing component to the given number of decimal
// places, a guard against reporting jitter in upstream headers.
func RoundZooms(z [3]float64, decimals int) [3]float64 {
	p := math.Pow(10, float64(decimals))
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = math.Round(z[i]*p) / p
	}
	return out
}

// WorldBounds returns the world-space bounding box of a voxel grid: the
// componentwise minimum and maximum over the eight corner voxel centers
// mapped through the affine.
func WorldBounds(a *mat.Dense, shape [3]int) (min, max [3]float64) {
	first := true
	for cx := 0; cx < 2; cx++ {
		for cy := 0; cy < 2; cy++ {
			for cz := 0; cz < 2; cz++ {
				p := Apply(a, [3]float64{
					float64(cx * (shape[0] - 1)),
					float64(cy * (shape[1] - 1)),
					float64(cz * (shape[2] - 1)),
				})
				for i := 0; i < 3; i++ {
					if first || p[i] < min[i] {
						min[i] = p[i]
					}
					if first || p[i] > max[i] {
						max[i] = p[i]
					}
				}
				first = false
			}
		}
	}
	return min, max
}
