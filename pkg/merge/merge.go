// Package merge concatenates an intra-modal series of volumetric images
// along the fourth axis, hands the series to a motion-correction
// collaborator, and derives an average volume. Estimating and applying the
// motion transforms is outside this core; the collaborator interface models
// the external tool boundary, and an identity implementation is provided
// for pipelines that skip motion correction.
package merge

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"volconform/pkg/config"
	"volconform/pkg/conform"
	"volconform/pkg/geometry"
	"volconform/pkg/naming"
	"volconform/pkg/orientation"
	"volconform/pkg/volume"
)

// MotionCorrector estimates and applies per-volume motion transforms to a
// 4-D series. It returns the corrected series, one rigid transform per
// volume, and one row of motion parameters per volume.
type MotionCorrector interface {
	EstimateAndApply(series *volume.Image) (*volume.Image, []*mat.Dense, [][]float64, error)
}

// IdentityCorrector is the no-op motion corrector: the series passes through
// unchanged with identity transforms and all-zero motion parameters.
type IdentityCorrector struct{}

// EstimateAndApply implements MotionCorrector.
func (IdentityCorrector) EstimateAndApply(series *volume.Image) (*volume.Image, []*mat.Dense, [][]float64, error) {
	tfms, params := identityTransforms(series.NumVolumes())
	return series, tfms, params, nil
}

func identityTransforms(n int) ([]*mat.Dense, [][]float64) {
	tfms := make([]*mat.Dense, n)
	params := make([][]float64, n)
	for i := 0; i < n; i++ {
		tfms[i] = geometry.IdentityAffine()
		params[i] = make([]float64, 6) // 3 rotations, 3 translations
	}
	return tfms, params
}

// Result holds the artifacts of a merge run.
type Result struct {
	MergedPath   string
	AveragePath  string
	Transforms   []*mat.Dense
	MotionParams [][]float64
}

// Merger merges file-path-addressed image series.
type Merger struct {
	store     conform.Store
	corrector MotionCorrector
	cfg       *config.Config
	logger    *log.Logger
}

// New creates a Merger. A nil corrector disables motion correction via the
// identity implementation; a nil logger falls back to the default logger.
func New(store conform.Store, corrector MotionCorrector, cfg *config.Config, logger *log.Logger) *Merger {
	if corrector == nil {
		corrector = IdentityCorrector{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Merger{store: store, corrector: corrector, cfg: cfg, logger: logger}
}

// Merge loads the given images, optionally reorients them to canonical RAS,
// concatenates them along the fourth axis, runs motion correction, and
// writes the merged series plus its across-volume average. A single 3-D
// input short-circuits: both outputs are file-level duplicates of the input,
// with identity transforms.
//
// Inputs with more than four axes after squeezing size-1 dimensions are
// rejected rather than guessed at.
func (m *Merger) Merge(paths []string) (*Result, error) {
	if len(paths) == 0 {
		return nil, &volume.InputError{Err: errors.New("no input images")}
	}

	images := make([]*volume.Image, len(paths))
	for i, p := range paths {
		img, err := m.store.Load(p)
		if err != nil {
			return nil, err
		}
		img = img.Squeezed()
		if img.NDim() > 4 {
			return nil, &volume.DimensionalityError{Path: p, NDim: img.NDim()}
		}
		if m.cfg.Merge.ToCanonical {
			if img, err = orientation.ClosestCanonical(img); err != nil {
				return nil, &volume.InputError{Path: p, Err: err}
			}
		}
		images[i] = img
	}

	mergedOut := naming.Derive(paths[0], m.cfg.Merge.MergedSuffix)
	avgOut := naming.Derive(paths[0], m.cfg.Merge.AverageSuffix)

	if len(images) == 1 && images[0].NDim() == 3 {
		// Nothing to merge or average; duplicate so callers own both outputs.
		m.logger.Debug("single 3-D input, passing through", "path", paths[0])
		for _, out := range []string{mergedOut, avgOut} {
			if err := conform.DuplicateFile(paths[0], out); err != nil {
				return nil, &volume.IOError{Path: out, Err: err}
			}
		}
		tfms, params := identityTransforms(1)
		return &Result{MergedPath: mergedOut, AveragePath: avgOut, Transforms: tfms, MotionParams: params}, nil
	}

	series, err := stack(images, paths, m.cfg.Tolerances.ForUnit(images[0].Unit))
	if err != nil {
		return nil, err
	}
	m.logger.Info("merged series", "inputs", len(paths), "volumes", series.NumVolumes())

	corrected, tfms, params, err := m.corrector.EstimateAndApply(series)
	if err != nil {
		return nil, fmt.Errorf("motion correction: %w", err)
	}

	if _, err := m.store.Save(corrected, mergedOut); err != nil {
		return nil, err
	}

	avg := average(corrected, m.cfg.Merge.ZeroBasedAverage)
	if _, err := m.store.Save(avg, avgOut); err != nil {
		return nil, err
	}

	return &Result{
		MergedPath:   mergedOut,
		AveragePath:  avgOut,
		Transforms:   tfms,
		MotionParams: params,
	}, nil
}

// stack concatenates the images' volumes along a fourth axis. All inputs
// must share the grid of the first image: the same shape and, within atol,
// the same affine. The merged series carries the first image's affine, so a
// mismatched input would silently lose its world position otherwise.
func stack(images []*volume.Image, paths []string, atol float64) (*volume.Image, error) {
	first := images[0]
	shape3 := first.Shape3()

	total := 0
	for i, img := range images {
		if img.Shape3() != shape3 {
			return nil, &volume.InputError{
				Path: paths[i],
				Err:  fmt.Errorf("grid %v does not match series grid %v", img.Shape3(), shape3),
			}
		}
		if !geometry.AffineAllClose(img.Affine, first.Affine, atol) {
			return nil, &volume.InputError{
				Path: paths[i],
				Err:  fmt.Errorf("affine does not match the series affine within %g", atol),
			}
		}
		total += img.NumVolumes()
	}

	vl := first.VolumeLen()
	out := &volume.Image{
		Data:   make([]float64, vl*total),
		Shape:  []int{shape3[0], shape3[1], shape3[2], total},
		Affine: geometry.CloneAffine(first.Affine),
		Unit:   first.Unit,
	}
	t := 0
	for _, img := range images {
		for v := 0; v < img.NumVolumes(); v++ {
			copy(out.Volume(t), img.Volume(v))
			t++
		}
	}
	return out, nil
}

// average reduces a series to one volume by the across-volume mean. With
// zeroBased the result is shifted so its minimum is zero.
func average(series *volume.Image, zeroBased bool) *volume.Image {
	vl := series.VolumeLen()
	acc := make([]float64, vl)
	n := series.NumVolumes()
	for t := 0; t < n; t++ {
		floats.Add(acc, series.Volume(t))
	}
	floats.Scale(1/float64(n), acc)
	if zeroBased {
		floats.AddConst(-floats.Min(acc), acc)
	}

	s3 := series.Shape3()
	return &volume.Image{
		Data:   acc,
		Shape:  []int{s3[0], s3[1], s3[2]},
		Affine: geometry.CloneAffine(series.Affine),
		Unit:   series.Unit,
	}
}
