package cli

import (
	"fmt"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"volconform/pkg/config"
	"volconform/pkg/conform"
	"volconform/pkg/naming"
	"volconform/pkg/nifti"
	"volconform/pkg/orientation"
	"volconform/pkg/resample"
)

// conformOpts holds the command-line flags for the conform command.
type conformOpts struct {
	outputDir     string // directory for outputs (default: next to inputs)
	suffix        string // output filename suffix
	interpolation string // resampling kernel: "linear" or "nearest"
	canonical     bool   // reorient inputs to canonical RAS first
}

// newConformCmd creates the conform command: bring a series of images onto
// the series' common voxel grid. Inputs are reoriented to canonical RAS
// first unless --no-canonical is given, since the grid unifier assumes
// consistent axis semantics.
func newConformCmd(cfgPath *string) *cobra.Command {
	opts := conformOpts{canonical: true}

	cmd := &cobra.Command{
		Use:   "conform [files...]",
		Short: "Conform a series of images onto a common voxel grid",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConform(cmd, args, &opts, *cfgPath)
		},
	}

	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "o", "", "directory for conformed outputs")
	cmd.Flags().StringVar(&opts.suffix, "suffix", "", "output filename suffix (default from config)")
	cmd.Flags().StringVar(&opts.interpolation, "interpolation", "", "resampling kernel: linear or nearest")
	cmd.Flags().BoolVar(&opts.canonical, "canonical", true, "reorient inputs to canonical RAS before conforming")

	return cmd
}

func runConform(cmd *cobra.Command, args []string, opts *conformOpts, cfgPath string) error {
	logger := loggerFromContext(cmd.Context())

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if opts.outputDir != "" {
		cfg.Conform.OutputDir = opts.outputDir
	}
	if opts.suffix != "" {
		cfg.Conform.Suffix = opts.suffix
	}
	if opts.interpolation != "" {
		cfg.Conform.Interpolation = opts.interpolation
	}

	store := nifti.Store{}
	paths := args
	if opts.canonical {
		if paths, err = reorientAll(store, args, logger); err != nil {
			return err
		}
	}

	conformer := conform.New(store, resample.New(), cfg, logger)
	outs, err := conformer.Conform(paths)
	if err != nil {
		return err
	}

	for _, out := range outs {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}
	return nil
}

// reorientAll writes a canonically oriented copy of every input that needs
// one and returns the per-input paths to use downstream. Inputs already in
// canonical orientation keep their original path.
func reorientAll(store nifti.Store, paths []string, logger *charmlog.Logger) ([]string, error) {
	out := make([]string, len(paths))
	for i, p := range paths {
		img, err := store.Load(p)
		if err != nil {
			return nil, err
		}
		canon, err := orientation.ClosestCanonical(img)
		if err != nil {
			return nil, err
		}
		if canon == img {
			out[i] = p
			continue
		}
		ras := naming.Derive(p, "ras")
		if _, err := store.Save(canon, ras); err != nil {
			return nil, err
		}
		logger.Debug("reoriented to canonical", "path", p, "out", ras)
		out[i] = ras
	}
	return out, nil
}
