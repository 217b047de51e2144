package preview

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"volconform/pkg/geometry"
	"volconform/pkg/volume"
)

func testVolume(t *testing.T) *volume.Image {
	t.Helper()
	shape := []int{4, 5, 6}
	data := make([]float64, 4*5*6)
	for i := range data {
		data[i] = float64(i)
	}
	img, err := volume.New(data, shape, geometry.IdentityAffine(), volume.UnitMillimeter)
	if err != nil {
		t.Fatalf("volume.New: %v", err)
	}
	return img
}

func TestSliceDimensions(t *testing.T) {
	e := New(testVolume(t))

	cases := []struct {
		axis string
		w, h int
	}{
		{"x", 5, 6},
		{"y", 4, 6},
		{"z", 4, 5},
	}
	for _, c := range cases {
		img, err := e.Slice(c.axis, 0)
		if err != nil {
			t.Fatalf("Slice(%q): %v", c.axis, err)
		}
		b := img.Bounds()
		if b.Dx() != c.w || b.Dy() != c.h {
			t.Errorf("axis %s: slice is %dx%d, want %dx%d", c.axis, b.Dx(), b.Dy(), c.w, c.h)
		}
	}
}

func TestSliceWindowing(t *testing.T) {
	e := New(testVolume(t))

	// The last z slice holds the maximum intensity at its far corner.
	img, err := e.Slice("z", 5)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	g := color.Gray16Model.Convert(img.At(3, 4)).(color.Gray16)
	if g.Y != 65535 {
		t.Errorf("max voxel renders as %d, want full white", g.Y)
	}

	img, err = e.Slice("z", 0)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	g = color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	if g.Y != 0 {
		t.Errorf("min voxel renders as %d, want black", g.Y)
	}
}

func TestSliceValidation(t *testing.T) {
	e := New(testVolume(t))

	if _, err := e.Slice("w", 0); err == nil {
		t.Error("invalid axis accepted")
	}
	if _, err := e.Slice("x", -1); err == nil {
		t.Error("negative position accepted")
	}
	if _, err := e.Slice("z", 6); err == nil {
		t.Error("out-of-range position accepted")
	}
}

func TestSaveMidSlices(t *testing.T) {
	dir := t.TempDir()
	e := New(testVolume(t))

	paths, err := e.SaveMidSlices(dir, "scan", 90)
	if err != nil {
		t.Fatalf("SaveMidSlices: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("wrote %d files, want 3", len(paths))
	}
	for i, axis := range []string{"x", "y", "z"} {
		want := filepath.Join(dir, "scan_"+axis+".jpg")
		if paths[i] != want {
			t.Errorf("path[%d] = %s, want %s", i, paths[i], want)
		}
		if fi, err := os.Stat(paths[i]); err != nil || fi.Size() == 0 {
			t.Errorf("%s missing or empty", paths[i])
		}
	}
}
