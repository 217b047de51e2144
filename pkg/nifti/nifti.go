// Package nifti implements a minimal NIfTI-1 codec for single-file volumes
// (.nii and .nii.gz). It decodes the grid shape, the voxel-to-world affine
// (sform first, qform quaternion as fallback), the spatial unit, and the
// voxel data with scaling applied. Unsupported files fault clearly rather
// than being silently truncated.
package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/mat"

	"volconform/pkg/geometry"
	"volconform/pkg/volume"
)

// NIfTI-1 datatype codes supported by this codec.
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
)

// Spatial unit codes from the xyzt_units field.
const (
	unitsMeter  = 1
	unitsMM     = 2
	unitsMicron = 3
	spaceMask   = 0x07
)

const (
	headerSize = 348
	voxOffset  = 352 // header + 4-byte extension flag

	// maxVoxels bounds the voxel count a header may claim. The dim fields
	// are untrusted input; without a cap a corrupt header could demand an
	// absurd allocation before a single voxel is read.
	maxVoxels = 1 << 30
)

// header mirrors the fixed 348-byte NIfTI-1 header layout. Field order and
// widths must not change; the struct is read and written field-by-field in
// little-endian byte order.
type header struct {
	SizeofHdr                    int32
	DataTypeUnused               [10]byte
	DBName                       [18]byte
	Extents                      int32
	SessionError                 int16
	Regular                      byte
	DimInfo                      byte
	Dim                          [8]int16
	IntentP1, IntentP2, IntentP3 float32
	IntentCode                   int16
	Datatype                     int16
	Bitpix                       int16
	SliceStart                   int16
	Pixdim                       [8]float32
	VoxOffset                    float32
	SclSlope                     float32
	SclInter                     float32
	SliceEnd                     int16
	SliceCode                    byte
	XyztUnits                    byte
	CalMax, CalMin               float32
	SliceDuration                float32
	Toffset                      float32
	Glmax, Glmin                 int32
	Descrip                      [80]byte
	AuxFile                      [24]byte
	QformCode                    int16
	SformCode                    int16
	QuaternB, QuaternC, QuaternD float32
	QoffsetX, QoffsetY, QoffsetZ float32
	SrowX                        [4]float32
	SrowY                        [4]float32
	SrowZ                        [4]float32
	IntentName                   [16]byte
	Magic                        [4]byte
}

func isGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// Load reads a NIfTI-1 file into an Image. Files that cannot be parsed as
// a supported volumetric format are reported as *volume.InputError.
func Load(path string) (*volume.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &volume.InputError{Path: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, &volume.InputError{Path: path, Err: err}
		}
		defer gz.Close()
		r = gz
	}

	img, err := decode(r)
	if err != nil {
		return nil, &volume.InputError{Path: path, Err: err}
	}
	return img, nil
}

func decode(r io.Reader) (*volume.Image, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if h.SizeofHdr != headerSize {
		return nil, fmt.Errorf("not a little-endian NIfTI-1 file (sizeof_hdr=%d)", h.SizeofHdr)
	}
	magic := string(h.Magic[:3])
	if magic == "ni1" {
		return nil, fmt.Errorf("two-file NIfTI pairs (.hdr/.img) are not supported")
	}
	if magic != "n+1" {
		return nil, fmt.Errorf("bad magic %q", magic)
	}

	ndim := int(h.Dim[0])
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("invalid number of dimensions %d", ndim)
	}
	shape := make([]int, ndim)
	n := 1
	for i := 0; i < ndim; i++ {
		d := int(h.Dim[i+1])
		if d < 1 {
			d = 1
		}
		shape[i] = d
		n *= d
		if n > maxVoxels {
			return nil, fmt.Errorf("header claims more than %d voxels (dim %v)", maxVoxels, h.Dim)
		}
	}

	// Skip extensions between the header and the voxel data.
	skip := int64(h.VoxOffset) - headerSize
	if skip < 0 {
		return nil, fmt.Errorf("invalid vox_offset %f", h.VoxOffset)
	}
	if _, err := io.CopyN(io.Discard, r, skip); err != nil {
		return nil, fmt.Errorf("skipping header extensions: %w", err)
	}

	data, err := readVoxels(r, h.Datatype, n)
	if err != nil {
		return nil, err
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope != 0 && !(slope == 1 && inter == 0) {
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return volume.New(data, shape, affineOf(&h), unitOf(h.XyztUnits))
}

func readVoxels(r io.Reader, datatype int16, n int) ([]float64, error) {
	data := make([]float64, n)
	switch datatype {
	case dtUint8:
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("reading voxel data: %w", err)
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case dtInt16:
		buf := make([]int16, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("reading voxel data: %w", err)
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case dtInt32:
		buf := make([]int32, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("reading voxel data: %w", err)
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case dtFloat32:
		buf := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, fmt.Errorf("reading voxel data: %w", err)
		}
		for i, v := range buf {
			data[i] = float64(v)
		}
	case dtFloat64:
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, fmt.Errorf("reading voxel data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported datatype code %d", datatype)
	}
	return data, nil
}

// affineOf derives the voxel-to-world affine: sform when present, then the
// qform quaternion, then a plain pixdim diagonal as a last resort.
func affineOf(h *header) *mat.Dense {
	if h.SformCode > 0 {
		a := geometry.IdentityAffine()
		for j := 0; j < 4; j++ {
			a.Set(0, j, float64(h.SrowX[j]))
			a.Set(1, j, float64(h.SrowY[j]))
			a.Set(2, j, float64(h.SrowZ[j]))
		}
		return a
	}
	if h.QformCode > 0 {
		return qformAffine(h)
	}
	return geometry.DiagAffine([3]float64{
		float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]),
	})
}

// qformAffine reconstructs the rotation from the stored quaternion per the
// NIfTI-1 reference definition.
func qformAffine(h *header) *mat.Dense {
	b := float64(h.QuaternB)
	c := float64(h.QuaternC)
	d := float64(h.QuaternD)
	aa := 1.0 - (b*b + c*c + d*d)
	if aa < 0 {
		aa = 0
	}
	a := math.Sqrt(aa)

	r := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2*b*c - 2*a*d, 2*b*d + 2*a*c},
		{2*b*c + 2*a*d, a*a + c*c - b*b - d*d, 2*c*d - 2*a*b},
		{2*b*d - 2*a*c, 2*c*d + 2*a*b, a*a + d*d - c*c - b*b},
	}

	qfac := 1.0
	if h.Pixdim[0] < 0 {
		qfac = -1.0
	}
	zooms := [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]) * qfac}

	out := geometry.IdentityAffine()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, r[i][j]*zooms[j])
		}
	}
	geometry.SetTranslation(out, [3]float64{
		float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ),
	})
	return out
}

func unitOf(xyzt byte) volume.Unit {
	switch xyzt & spaceMask {
	case unitsMeter:
		return volume.UnitMeter
	case unitsMM:
		return volume.UnitMillimeter
	case unitsMicron:
		return volume.UnitMicron
	default:
		return volume.UnitUnknown
	}
}

func unitCode(u volume.Unit) byte {
	switch u {
	case volume.UnitMeter:
		return unitsMeter
	case volume.UnitMillimeter:
		return unitsMM
	case volume.UnitMicron:
		return unitsMicron
	default:
		return 0
	}
}

// Save writes the image to path as a single-file NIfTI-1 volume with float64
// voxels, gzip-compressed when the path ends in .gz. The parent directory is
// created if needed. Failures are reported as *volume.IOError. The written
// path is returned.
func Save(img *volume.Image, path string) (string, error) {
	if err := img.Validate(); err != nil {
		return "", &volume.IOError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", &volume.IOError{Path: path, Err: err}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", &volume.IOError{Path: path, Err: err}
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if isGzip(path) {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := encode(w, img); err != nil {
		return "", &volume.IOError{Path: path, Err: err}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return "", &volume.IOError{Path: path, Err: err}
		}
	}
	if err := f.Close(); err != nil {
		return "", &volume.IOError{Path: path, Err: err}
	}
	return path, nil
}

func encode(w io.Writer, img *volume.Image) error {
	var h header
	h.SizeofHdr = headerSize
	h.Regular = 'r'

	ndim := img.NDim()
	h.Dim[0] = int16(ndim)
	for i := 1; i < 8; i++ {
		h.Dim[i] = 1
	}
	for i, d := range img.Shape {
		h.Dim[i+1] = int16(d)
	}

	h.Datatype = dtFloat64
	h.Bitpix = 64
	h.SclSlope = 1

	zooms := img.Zooms()
	h.Pixdim[0] = 1
	for i := 0; i < 3; i++ {
		h.Pixdim[i+1] = float32(zooms[i])
	}

	h.VoxOffset = voxOffset
	h.XyztUnits = unitCode(img.Unit)
	h.SformCode = 1 // NIFTI_XFORM_SCANNER_ANAT
	for j := 0; j < 4; j++ {
		h.SrowX[j] = float32(img.Affine.At(0, j))
		h.SrowY[j] = float32(img.Affine.At(1, j))
		h.SrowZ[j] = float32(img.Affine.At(2, j))
	}
	copy(h.Magic[:], "n+1\x00")

	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	// No header extensions.
	if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
		return fmt.Errorf("writing extension flag: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, img.Data); err != nil {
		return fmt.Errorf("writing voxel data: %w", err)
	}
	return nil
}

// Store adapts the codec to the storage collaborator interface used by the
// conforming pipeline.
type Store struct{}

// Load implements the storage contract.
func (Store) Load(path string) (*volume.Image, error) { return Load(path) }

// Save implements the storage contract.
func (Store) Save(img *volume.Image, path string) (string, error) { return Save(img, path) }
