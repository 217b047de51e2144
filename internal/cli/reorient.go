package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"volconform/pkg/naming"
	"volconform/pkg/nifti"
	"volconform/pkg/orientation"
)

// newReorientCmd creates the reorient command: relabel an image's axes into
// the closest canonical (RAS) orientation without resampling.
func newReorientCmd(cfgPath *string) *cobra.Command {
	_ = cfgPath // reorientation has no configurable behavior

	return &cobra.Command{
		Use:   "reorient <file>",
		Short: "Reorient an image to the closest canonical orientation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			store := nifti.Store{}

			img, err := store.Load(args[0])
			if err != nil {
				return err
			}
			canon, err := orientation.ClosestCanonical(img)
			if err != nil {
				return err
			}
			if canon == img {
				logger.Info("image already in canonical orientation", "path", args[0])
			}

			out, err := store.Save(canon, naming.Derive(args[0], "ras"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
