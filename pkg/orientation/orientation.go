// Package orientation reorders and flips voxel axes so that an image sits in
// the closest canonical (RAS) anatomical orientation. The operation is a pure
// affine/array relabeling: voxel values are moved, never interpolated, and the
// world-space position of every voxel is preserved.
package orientation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"volconform/pkg/geometry"
	"volconform/pkg/volume"
)

// axisMap describes, for each voxel axis, the world axis it predominantly
// points along and whether it points in the negative direction.
type axisMap struct {
	world [3]int
	flip  [3]bool
}

// mapAxes finds the dominant world axis for each column of the affine's
// linear part. Assignment is greedy on the largest remaining magnitude so
// that oblique affines still yield a proper permutation.
func mapAxes(a *mat.Dense) (axisMap, error) {
	var m axisMap
	usedRow := [3]bool{}
	usedCol := [3]bool{}

	for n := 0; n < 3; n++ {
		best := -1.0
		bi, bj := -1, -1
		for i := 0; i < 3; i++ {
			if usedRow[i] {
				continue
			}
			for j := 0; j < 3; j++ {
				if usedCol[j] {
					continue
				}
				v := a.At(i, j)
				if v < 0 {
					v = -v
				}
				if v > best {
					best, bi, bj = v, i, j
				}
			}
		}
		if best == 0 {
			return m, fmt.Errorf("orientation: affine has a degenerate column")
		}
		usedRow[bi] = true
		usedCol[bj] = true
		m.world[bj] = bi
		m.flip[bj] = a.At(bi, bj) < 0
	}
	return m, nil
}

// isIdentity reports whether the mapping leaves every axis in place and
// unflipped.
func (m axisMap) isIdentity() bool {
	for j := 0; j < 3; j++ {
		if m.world[j] != j || m.flip[j] {
			return false
		}
	}
	return true
}

// ClosestCanonical returns an image equivalent to img whose voxel axes are
// permuted and flipped into the closest RAS orientation. Images already in
// canonical orientation are returned unchanged. Axes beyond the third are
// untouched.
func ClosestCanonical(img *volume.Image) (*volume.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	m, err := mapAxes(img.Affine)
	if err != nil {
		return nil, err
	}
	if m.isIdentity() {
		return img, nil
	}

	// perm[i] is the old voxel axis that becomes new axis i.
	var perm [3]int
	var flip [3]bool
	for j := 0; j < 3; j++ {
		perm[m.world[j]] = j
		flip[m.world[j]] = m.flip[j]
	}

	oldShape := img.Shape3()
	var newShape3 [3]int
	for i := 0; i < 3; i++ {
		newShape3[i] = oldShape[perm[i]]
	}

	// T maps new voxel indices to old voxel indices, so the composed affine
	// assigns every relocated voxel its original world coordinate.
	t := mat.NewDense(4, 4, nil)
	t.Set(3, 3, 1)
	for i := 0; i < 3; i++ {
		j := perm[i]
		if flip[i] {
			t.Set(j, i, -1)
			t.Set(j, 3, float64(oldShape[j]-1))
		} else {
			t.Set(j, i, 1)
		}
	}
	newAffine := geometry.Mul(img.Affine, t)

	newShape := make([]int, len(img.Shape))
	copy(newShape, img.Shape)
	for i := 0; i < 3; i++ {
		newShape[i] = newShape3[i]
	}

	out := &volume.Image{
		Data:   make([]float64, len(img.Data)),
		Shape:  newShape,
		Affine: newAffine,
		Unit:   img.Unit,
	}

	vl := img.VolumeLen()
	for v := 0; v < img.NumVolumes(); v++ {
		src := img.Data[v*vl : (v+1)*vl]
		dst := out.Data[v*vl : (v+1)*vl]
		var old [3]int
		for nz := 0; nz < newShape3[2]; nz++ {
			for ny := 0; ny < newShape3[1]; ny++ {
				for nx := 0; nx < newShape3[0]; nx++ {
					n := [3]int{nx, ny, nz}
					for i := 0; i < 3; i++ {
						if flip[i] {
							old[perm[i]] = oldShape[perm[i]] - 1 - n[i]
						} else {
							old[perm[i]] = n[i]
						}
					}
					srcIdx := old[0] + oldShape[0]*(old[1]+oldShape[1]*old[2])
					dstIdx := nx + newShape3[0]*(ny+newShape3[1]*nz)
					dst[dstIdx] = src[srcIdx]
				}
			}
		}
	}

	return out, nil
}
