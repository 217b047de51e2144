package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"volconform/pkg/conform"
	"volconform/pkg/nifti"
)

// newFixHeaderCmd creates the fixhdr command: rewrite an image with the
// affine and spatial unit of a reference image, keeping its voxel data.
func newFixHeaderCmd(cfgPath *string) *cobra.Command {
	_ = cfgPath // header copying has no configurable behavior

	var suffix string

	cmd := &cobra.Command{
		Use:   "fixhdr <data> <reference>",
		Short: "Replace an image's geometry with a reference image's affine and unit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := conform.CopyHeader(nifti.Store{}, args[0], args[1], suffix)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&suffix, "suffix", "fixhdr", "output filename suffix")
	return cmd
}
