package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"volconform/pkg/config"
	"volconform/pkg/conform"
	"volconform/pkg/nifti"
	"volconform/pkg/resample"
)

// newReferenceCmd creates the reference command: build a reference grid that
// keeps the fixed image's field of view at the moving image's voxel spacing.
func newReferenceCmd(cfgPath *string) *cobra.Command {
	var suffix string

	cmd := &cobra.Command{
		Use:   "reference <fixed> <moving>",
		Short: "Build a resampling reference grid from a fixed and a moving image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if suffix != "" {
				cfg.Reference.Suffix = suffix
			}

			builder := conform.NewReferenceBuilder(nifti.Store{}, resample.New(), cfg, loggerFromContext(cmd.Context()))
			out, err := builder.Build(args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&suffix, "suffix", "", "output filename suffix (default from config)")
	return cmd
}
