package volume

import (
	"errors"
	"testing"

	"volconform/pkg/geometry"
)

func testImage(t *testing.T, shape []int) *Image {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	img, err := New(data, shape, geometry.DiagAffine([3]float64{1, 1, 1}), UnitMillimeter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return img
}

func TestNewValidates(t *testing.T) {
	affine := geometry.DiagAffine([3]float64{1, 1, 1})

	if _, err := New(make([]float64, 4), []int{2, 2}, affine, UnitUnknown); err == nil {
		t.Error("fewer than 3 axes should be rejected")
	} else {
		var derr *DimensionalityError
		if !errors.As(err, &derr) {
			t.Errorf("want DimensionalityError, got %T", err)
		}
	}

	if _, err := New(make([]float64, 7), []int{2, 2, 2}, affine, UnitUnknown); err == nil {
		t.Error("data/shape mismatch should be rejected")
	}

	if _, err := New(make([]float64, 8), []int{2, 2, 2}, nil, UnitUnknown); err == nil {
		t.Error("nil affine should be rejected")
	}
}

func TestShapeAccessors(t *testing.T) {
	img := testImage(t, []int{4, 5, 6, 3})

	if got := img.Shape3(); got != [3]int{4, 5, 6} {
		t.Errorf("Shape3 = %v", got)
	}
	if got := img.NumVolumes(); got != 3 {
		t.Errorf("NumVolumes = %d, want 3", got)
	}
	if got := img.VolumeLen(); got != 120 {
		t.Errorf("VolumeLen = %d, want 120", got)
	}

	// Volume(t) aliases the right span of data.
	v1 := img.Volume(1)
	if v1[0] != 120 {
		t.Errorf("Volume(1)[0] = %v, want 120", v1[0])
	}
}

func TestZooms(t *testing.T) {
	img := testImage(t, []int{2, 2, 2})
	img.Affine = geometry.DiagAffine([3]float64{2, 2.5, 3})

	if got := img.Zooms(); got != [3]float64{2, 2.5, 3} {
		t.Errorf("Zooms = %v", got)
	}
}

func TestSqueezed(t *testing.T) {
	img := testImage(t, []int{4, 5, 6, 1, 1})
	sq := img.Squeezed()
	if sq.NDim() != 3 {
		t.Errorf("squeezed NDim = %d, want 3", sq.NDim())
	}

	img = testImage(t, []int{4, 5, 6, 1, 2})
	sq = img.Squeezed()
	if sq.NDim() != 4 || sq.Shape[3] != 2 {
		t.Errorf("squeezed shape = %v, want [4 5 6 2]", sq.Shape)
	}

	// Spatial size-1 axes are never dropped.
	img = testImage(t, []int{4, 1, 6})
	if sq := img.Squeezed(); sq.NDim() != 3 {
		t.Errorf("spatial axis dropped: %v", sq.Shape)
	}

	// Already-minimal images come back unchanged.
	img = testImage(t, []int{4, 5, 6})
	if sq := img.Squeezed(); sq != img {
		t.Error("squeeze of 3-D image should be a no-op")
	}
}

func TestClone(t *testing.T) {
	img := testImage(t, []int{2, 2, 2})
	cl := img.Clone()

	cl.Data[0] = 99
	cl.Affine.Set(0, 3, 42)
	if img.Data[0] == 99 || img.Affine.At(0, 3) == 42 {
		t.Error("Clone shares storage with the original")
	}
}

func TestUnitString(t *testing.T) {
	cases := map[Unit]string{
		UnitUnknown:    "unknown",
		UnitMeter:      "meter",
		UnitMillimeter: "millimeter",
		UnitMicron:     "micron",
	}
	for u, want := range cases {
		if got := u.String(); got != want {
			t.Errorf("Unit(%d).String() = %q, want %q", u, got, want)
		}
	}
}
