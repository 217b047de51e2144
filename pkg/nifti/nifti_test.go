package nifti

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volconform/pkg/geometry"
	"volconform/pkg/volume"
)

func sampleImage(t *testing.T) *volume.Image {
	t.Helper()
	affine := geometry.DiagAffine([3]float64{2, 2.5, 3})
	geometry.SetTranslation(affine, [3]float64{-10, 5.5, 0.25})

	data := make([]float64, 4*3*2)
	for i := range data {
		data[i] = float64(i) * 0.5
	}
	img, err := volume.New(data, []int{4, 3, 2}, affine, volume.UnitMillimeter)
	require.NoError(t, err)
	return img
}

func TestSaveLoadRoundtrip(t *testing.T) {
	for _, name := range []string{"img.nii", "img.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			img := sampleImage(t)
			path := filepath.Join(t.TempDir(), name)

			written, err := Save(img, path)
			require.NoError(t, err)
			assert.Equal(t, path, written)

			got, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, img.Shape, got.Shape)
			assert.Equal(t, img.Data, got.Data, "float64 voxels roundtrip exactly")
			assert.Equal(t, volume.UnitMillimeter, got.Unit)

			// The sform rows are stored as float32, so the affine comes back
			// within single precision only.
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					assert.InDelta(t, img.Affine.At(i, j), got.Affine.At(i, j), 1e-5,
						"affine[%d][%d]", i, j)
				}
			}
		})
	}
}

func TestFourDRoundtrip(t *testing.T) {
	data := make([]float64, 2*2*2*3)
	for i := range data {
		data[i] = float64(i)
	}
	img, err := volume.New(data, []int{2, 2, 2, 3}, geometry.IdentityAffine(), volume.UnitUnknown)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "series.nii.gz")
	_, err = Save(img, path)
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2, 3}, got.Shape)
	assert.Equal(t, data, got.Data)
	assert.Equal(t, volume.UnitUnknown, got.Unit)
}

func TestLoadAppliesScaling(t *testing.T) {
	img := sampleImage(t)
	path := filepath.Join(t.TempDir(), "scaled.nii")
	_, err := Save(img, path)
	require.NoError(t, err)

	// Patch scl_slope (offset 112) and scl_inter (offset 116) in place.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(raw[112:], math.Float32bits(2))
	binary.LittleEndian.PutUint32(raw[116:], math.Float32bits(1))
	require.NoError(t, os.WriteFile(path, raw, 0644))

	got, err := Load(path)
	require.NoError(t, err)
	for i, v := range img.Data {
		assert.Equal(t, v*2+1, got.Data[i])
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	img := sampleImage(t)
	path := filepath.Join(t.TempDir(), "bad.nii")
	_, err := Save(img, path)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(raw[344:], "xxx\x00")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = Load(path)
	var ierr *volume.InputError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, path, ierr.Path)
}

func TestLoadRejectsTwoDimensionalFile(t *testing.T) {
	// Hand-build a 2-D file by saving a 3-D image and rewriting dim[0]
	// and dim[3] in the header.
	img := sampleImage(t)
	p := filepath.Join(t.TempDir(), "flat.nii")
	_, err := Save(img, p)
	require.NoError(t, err)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(raw[40:], 2)  // dim[0]
	binary.LittleEndian.PutUint16(raw[46:], 1)  // dim[3]
	require.NoError(t, os.WriteFile(p, raw, 0644))

	_, err = Load(p)
	require.Error(t, err)
	var derr *volume.DimensionalityError
	assert.True(t, errors.As(err, &derr), "want DimensionalityError, got %v", err)
}

func TestLoadRejectsImplausibleDims(t *testing.T) {
	// A corrupt header claiming 32767^7 voxels must fail cleanly instead of
	// attempting the allocation.
	img := sampleImage(t)
	p := filepath.Join(t.TempDir(), "corrupt.nii")
	_, err := Save(img, p)
	require.NoError(t, err)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(raw[40:], 7) // dim[0]
	for i := 1; i <= 7; i++ {
		binary.LittleEndian.PutUint16(raw[40+2*i:], 32767)
	}
	require.NoError(t, os.WriteFile(p, raw, 0644))

	_, err = Load(p)
	var ierr *volume.InputError
	require.ErrorAs(t, err, &ierr)
	assert.Contains(t, err.Error(), "voxels")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.nii"))
	var ierr *volume.InputError
	require.ErrorAs(t, err, &ierr)
}

func TestQformFallback(t *testing.T) {
	img := sampleImage(t)
	path := filepath.Join(t.TempDir(), "qform.nii")
	_, err := Save(img, path)
	require.NoError(t, err)

	// Disable the sform (offset 254) so the identity quaternion qform
	// (offset 252) with pixdim spacing takes over.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint16(raw[254:], 0) // sform_code
	binary.LittleEndian.PutUint16(raw[252:], 1) // qform_code
	require.NoError(t, os.WriteFile(path, raw, 0644))

	got, err := Load(path)
	require.NoError(t, err)

	// Identity quaternion: the affine is diagonal with the pixdim zooms.
	zooms := got.Zooms()
	assert.InDelta(t, 2, zooms[0], 1e-5)
	assert.InDelta(t, 2.5, zooms[1], 1e-5)
	assert.InDelta(t, 3, zooms[2], 1e-5)
}
