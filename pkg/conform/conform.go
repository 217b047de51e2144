// Package conform brings a series of independently acquired 3-D volumetric
// images onto one common sampling grid, and synthesizes resampling reference
// grids. The common grid takes the per-axis maximum shape (no input extent is
// clipped) and the per-axis minimum spacing (the finest resolution present is
// kept). Images already on the target grid are duplicated at the file level
// rather than resampled, so unchanged outputs are byte-identical to their
// inputs and downstream consumers can see that no computation happened.
//
// Storage, resampling and output naming are collaborators behind narrow
// interfaces; this package only decides what grid to resample onto and when
// resampling is needed.
package conform

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/mat"

	"volconform/pkg/config"
	"volconform/pkg/geometry"
	"volconform/pkg/naming"
	"volconform/pkg/resample"
	"volconform/pkg/volume"
)

// Store is the image storage collaborator.
type Store interface {
	Load(path string) (*volume.Image, error)
	Save(img *volume.Image, path string) (string, error)
}

// Resampler is the affine resampling collaborator.
type Resampler interface {
	Resample(img *volume.Image, targetAffine *mat.Dense, targetShape [3]int, interp resample.Interpolation) (*volume.Image, error)
}

// Decision records what the grid unifier decided for one image of a series.
type Decision struct {
	// Rescale is set when the image's spacing differs from the target
	// beyond the unit's tolerance.
	Rescale bool

	// Resize is set when the image's shape differs from the target on any
	// axis.
	Resize bool

	// TargetAffine is the affine to resample onto. It is nil when neither
	// rescale nor resize applies and the image passes through untouched.
	TargetAffine *mat.Dense
}

// Changed reports whether the image needs resampling at all.
func (d Decision) Changed() bool { return d.Rescale || d.Resize }

// Plan is the derived target grid for a series plus one decision per image,
// in input order.
type Plan struct {
	TargetShape [3]int
	TargetZooms [3]float64
	Decisions   []Decision
}

// PlanSeries derives the common target grid for a series of 3-D images and
// decides, per image, whether rescaling or resizing is required. Inputs must
// already be in canonical orientation; axis semantics are assumed consistent
// and never reordered here.
func PlanSeries(images []*volume.Image, tol config.Tolerances) (*Plan, error) {
	if len(images) == 0 {
		return nil, &volume.InputError{Err: errors.New("empty image series")}
	}

	shapes := make([][3]int, len(images))
	zooms := make([][3]float64, len(images))
	for i, img := range images {
		if img.NDim() != 3 {
			return nil, &volume.DimensionalityError{NDim: img.NDim()}
		}
		shapes[i] = img.Shape3()
		zooms[i] = img.Zooms()
	}

	plan := &Plan{
		TargetShape: geometry.MaxShape(shapes...),
		TargetZooms: geometry.MinZooms(zooms...),
		Decisions:   make([]Decision, len(images)),
	}

	for i, img := range images {
		atol := tol.ForUnit(img.Unit)
		d := Decision{
			Rescale: !geometry.AllCloseAbs(zooms[i], plan.TargetZooms, atol),
			Resize:  shapes[i] != plan.TargetShape,
		}
		if d.Changed() {
			d.TargetAffine = targetAffineFor(img, plan.TargetShape, plan.TargetZooms, d.Rescale, d.Resize)
		}
		plan.Decisions[i] = d
	}
	return plan, nil
}

// targetAffineFor synthesizes the affine an image is resampled onto.
//
// When rescaling, the linear part is scaled by the elementwise ratio of
// target to current spacing. When resizing, the origin is shifted by an
// integer-truncated proportional offset so the image keeps its relative
// position within the enlarged field of view instead of being anchored at a
// corner; truncating to whole voxels avoids fractional shifts that would
// force interpolation where none is needed. When not resizing the
// translation is left as-is, even for rescale-only images.
func targetAffineFor(img *volume.Image, targetShape [3]int, targetZooms [3]float64, rescale, resize bool) *mat.Dense {
	out := geometry.CloneAffine(img.Affine)
	if rescale {
		zooms := img.Zooms()
		var factors [3]float64
		for i := 0; i < 3; i++ {
			factors[i] = targetZooms[i] / zooms[i]
		}
		out = geometry.ScaleLinear(out, factors)
	}
	if resize {
		shape := img.Shape3()
		t := geometry.Translation(img.Affine)
		for i := 0; i < 3; i++ {
			factor := float64(targetShape[i]+shape[i]) / (2 * float64(shape[i]))
			t[i] += math.Trunc(t[i]*factor - t[i])
		}
		geometry.SetTranslation(out, t)
	}
	return out
}

// Conformer runs the grid unifier over file-path-addressed images.
type Conformer struct {
	store     Store
	resampler Resampler
	cfg       *config.Config
	logger    *log.Logger
}

// New creates a Conformer. A nil logger falls back to the default logger.
func New(store Store, resampler Resampler, cfg *config.Config, logger *log.Logger) *Conformer {
	if logger == nil {
		logger = log.Default()
	}
	return &Conformer{store: store, resampler: resampler, cfg: cfg, logger: logger}
}

// Conform brings every image in paths onto the series' common grid and
// returns the output paths in input order. Unchanged images are hard-linked
// (or copied) so their content is bit-for-bit identical to the input; the
// rest are resampled onto their synthesized target affine. The call either
// conforms all images or fails; there is no partial success.
func (c *Conformer) Conform(paths []string) ([]string, error) {
	interp, err := resample.ParseInterpolation(c.cfg.Conform.Interpolation)
	if err != nil {
		return nil, &volume.InputError{Err: err}
	}

	images := make([]*volume.Image, len(paths))
	for i, p := range paths {
		img, err := c.store.Load(p)
		if err != nil {
			return nil, err
		}
		img = img.Squeezed()
		if img.NDim() != 3 {
			return nil, &volume.DimensionalityError{Path: p, NDim: img.NDim()}
		}
		images[i] = img
	}

	plan, err := PlanSeries(images, c.cfg.Tolerances)
	if err != nil {
		return nil, err
	}
	c.logger.Info("conforming series",
		"images", len(paths),
		"targetShape", fmt.Sprintf("%v", plan.TargetShape),
		"targetZooms", fmt.Sprintf("%.3v", plan.TargetZooms))

	outs := make([]string, len(paths))
	for i, p := range paths {
		out := naming.DeriveIn(c.cfg.Conform.OutputDir, p, c.cfg.Conform.Suffix)
		d := plan.Decisions[i]

		if !d.Changed() {
			// Already on the target grid: duplicate the original storage so
			// provenance shows no computation happened.
			if err := DuplicateFile(p, out); err != nil {
				return nil, &volume.IOError{Path: out, Err: err}
			}
			c.logger.Debug("image already conformed", "path", p, "out", out)
			outs[i] = out
			continue
		}

		resampled, err := c.resampler.Resample(images[i], d.TargetAffine, plan.TargetShape, interp)
		if err != nil {
			return nil, fmt.Errorf("resampling %s: %w", p, err)
		}
		if _, err := c.store.Save(resampled, out); err != nil {
			return nil, err
		}
		c.logger.Debug("image resampled",
			"path", p, "out", out, "rescale", d.Rescale, "resize", d.Resize)
		outs[i] = out
	}
	return outs, nil
}
