package conform

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volconform/pkg/config"
	"volconform/pkg/geometry"
	"volconform/pkg/nifti"
	"volconform/pkg/resample"
	"volconform/pkg/volume"
)

func TestReferenceGrid(t *testing.T) {
	fixed := makeImage(t, [3]int{10, 12, 14}, [3]float64{2, 2, 2}, volume.UnitMillimeter)
	geometry.SetTranslation(fixed.Affine, [3]float64{5, -3, 1})

	affine, shape := referenceGrid(fixed, [3]float64{1, 1, 1})

	// Extent per axis is zoom*(n-1); at unit spacing the grid needs
	// extent+1 samples to cover it.
	assert.Equal(t, [3]int{19, 23, 27}, shape)
	assert.Equal(t, [3]float64{1, 1, 1}, geometry.ZoomsOf(affine))
	assert.Equal(t, [3]float64{5, -3, 1}, geometry.Translation(affine),
		"origin sits at the minimum world corner")
}

func TestReferenceGridExactDivisionGainsNoVoxel(t *testing.T) {
	fixed := makeImage(t, [3]int{11, 11, 11}, [3]float64{1, 1, 1}, volume.UnitMillimeter)

	// Extent 10 at spacing 2 divides exactly: 6 samples, not 7.
	_, shape := referenceGrid(fixed, [3]float64{2, 2, 2})
	assert.Equal(t, [3]int{6, 6, 6}, shape)
}

func TestReferenceGridFlippedAxis(t *testing.T) {
	fixed := makeImage(t, [3]int{10, 10, 10}, [3]float64{2, 2, 2}, volume.UnitMillimeter)
	fixed.Affine = geometry.DiagAffine([3]float64{-2, 2, 2})
	geometry.SetTranslation(fixed.Affine, [3]float64{9, 0, 0})

	affine, shape := referenceGrid(fixed, [3]float64{1, 1, 1})

	// World x runs from 9-18 to 9; the reference grid starts at the low end.
	assert.Equal(t, 19, shape[0])
	assert.Equal(t, -9.0, geometry.Translation(affine)[0])
}

func TestBuildReference(t *testing.T) {
	dir := t.TempDir()

	fixed := makeImage(t, [3]int{10, 12, 14}, [3]float64{2, 2, 2}, volume.UnitMillimeter)
	geometry.SetTranslation(fixed.Affine, [3]float64{5, -3, 1})
	fixedPath := writeNifti(t, dir, "fixed.nii.gz", fixed)

	// The moving image's spacing is off by float noise; rounding to three
	// decimals recovers the intended 1 mm grid.
	moving := makeImage(t, [3]int{6, 6, 6}, [3]float64{1.0001, 1.0002, 0.9999}, volume.UnitMillimeter)
	movingPath := writeNifti(t, dir, "moving.nii.gz", moving)

	b := NewReferenceBuilder(nifti.Store{}, resample.New(), config.DefaultConfig(), nil)
	out, err := b.Build(fixedPath, movingPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fixed_ref.nii.gz"), out)

	ref, err := nifti.Load(out)
	require.NoError(t, err)
	assert.Equal(t, [3]int{19, 23, 27}, ref.Shape3())
	assert.Equal(t, [3]float64{1, 1, 1}, ref.Zooms())

	// Nearest-neighbor sampling introduces no intensity values absent from
	// the fixed image.
	seen := map[float64]bool{0: true}
	for _, v := range fixed.Data {
		seen[v] = true
	}
	for _, v := range ref.Data {
		assert.True(t, seen[v], "unexpected intensity %v", v)
	}
}

func TestBuildReferenceRejectsFourDFixed(t *testing.T) {
	dir := t.TempDir()

	data := make([]float64, 4*4*4*2)
	fourD, err := volume.New(data, []int{4, 4, 4, 2}, geometry.IdentityAffine(), volume.UnitMillimeter)
	require.NoError(t, err)
	fixedPath := writeNifti(t, dir, "fixed.nii.gz", fourD)

	moving := makeImage(t, [3]int{4, 4, 4}, [3]float64{1, 1, 1}, volume.UnitMillimeter)
	movingPath := writeNifti(t, dir, "moving.nii.gz", moving)

	b := NewReferenceBuilder(nifti.Store{}, resample.New(), config.DefaultConfig(), nil)
	_, err = b.Build(fixedPath, movingPath)
	var derr *volume.DimensionalityError
	require.ErrorAs(t, err, &derr)
}
