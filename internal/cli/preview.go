package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"volconform/pkg/config"
	"volconform/pkg/naming"
	"volconform/pkg/nifti"
	"volconform/pkg/preview"
)

// newPreviewCmd creates the preview command: save the mid-slice along each
// axis of an image as JPEG for quick quality control.
func newPreviewCmd(cfgPath *string) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Extract mid-slice QC previews from an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}

			img, err := nifti.Load(args[0])
			if err != nil {
				return err
			}

			stem, _ := naming.SplitExt(args[0])
			paths, err := preview.New(img).SaveMidSlices(outDir, stemBase(stem), cfg.Preview.Quality)
			if err != nil {
				return err
			}

			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "previews", "directory for preview images")
	return cmd
}

func stemBase(stem string) string { return filepath.Base(stem) }
