package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"volconform/pkg/config"
	"volconform/pkg/merge"
	"volconform/pkg/nifti"
)

// newMergeCmd creates the merge command: concatenate an intra-modal series
// along the fourth axis and derive its average volume. Motion correction is
// the identity unless an external corrector is wired in by the embedding
// pipeline.
func newMergeCmd(cfgPath *string) *cobra.Command {
	var noZeroBase bool

	cmd := &cobra.Command{
		Use:   "merge [files...]",
		Short: "Merge an intra-modal image series and compute its average",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if noZeroBase {
				cfg.Merge.ZeroBasedAverage = false
			}

			merger := merge.New(nifti.Store{}, nil, cfg, loggerFromContext(cmd.Context()))
			res, err := merger.Merge(args)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.MergedPath)
			fmt.Fprintln(cmd.OutOrStdout(), res.AveragePath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noZeroBase, "no-zero-base", false, "do not shift the average so its minimum is zero")
	return cmd
}
