package conform

import (
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

// ReferenceBuilder synthesizes a resampling reference grid: it keeps a fixed
// image's field of view while adopting a moving image's voxel spacing. The
// moving spacing is rounded before use because downstream resampling is
// sensitive to tiny spacing deltas producing a slightly different
// field-of-view box.
type ReferenceBuilder struct {
	store     Store
	resampler Resampler
	cfg       *config.Config
	logger    *log.Logger
}

// NewReferenceBuilder creates a ReferenceBuilder. A nil logger falls back to
// the default logger.
func NewReferenceBuilder(store Store, resampler Resampler, cfg *config.Config, logger *log.Logger) *ReferenceBuilder {
	if logger == nil {
		logger = log.Default()
	}
	return &ReferenceBuilder{store: store, resampler: resampler, cfg: cfg, logger: logger}
}

// Build reads the fixed and moving images, derives the reference grid, and
// writes the fixed image resampled onto it with nearest-neighbor
// interpolation so no new intensity values are introduced. The output path
// is derived from the fixed image's path plus the configured suffix.
func (b *ReferenceBuilder) Build(fixedPath, movingPath string) (string, error) {
	fixed, err := b.store.Load(fixedPath)
	if err != nil {
		return "", err
	}
	fixed = fixed.Squeezed()
	if fixed.NDim() != 3 {
		return "", &volume.DimensionalityError{Path: fixedPath, NDim: fixed.NDim()}
	}

	moving, err := b.store.Load(movingPath)
	if err != nil {
		return "", err
	}

	zooms := geometry.RoundZooms(moving.Zooms(), b.cfg.Reference.RoundDecimals)
	affine, shape := referenceGrid(fixed, zooms)

	b.logger.Info("building reference grid",
		"fixed", fixedPath,
		"zooms", fmt.Sprintf("%.3v", zooms),
		"shape", fmt.Sprintf("%v", shape))

	ref, err := b.resampler.Resample(fixed, affine, shape, resample.Nearest)
	if err != nil {
		return "", fmt.Errorf("resampling %s: %w", fixedPath, err)
	}

	out := naming.Derive(fixedPath, b.cfg.Reference.Suffix)
	return b.store.Save(ref, out)
}

// referenceGrid builds a diagonal affine at the given spacing whose origin
// sits at the minimum world corner of the fixed grid, with a shape large
// enough to cover the fixed field of view.
func referenceGrid(fixed *volume.Image, zooms [3]float64) (affine *mat.Dense, shape [3]int) {
	min, max := geometry.WorldBounds(fixed.Affine, fixed.Shape3())
	for i := 0; i < 3; i++ {
		extent := max[i] - min[i]
		// The epsilon keeps an exactly-divisible extent from gaining a voxel
		// through floating-point noise.
		shape[i] = int(math.Ceil(extent/zooms[i]-1e-9)) + 1
	}
	affine = geometry.DiagAffine(zooms)
	geometry.SetTranslation(affine, min)
	return affine, shape
}
