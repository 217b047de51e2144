package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version. This is
// typically called by the main package with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the volconform CLI and returns an error if any command fails.
//
// The root command wires up all subcommands, configures logging based on the
// --verbose flag, and tags every log line of a run with a short correlation
// id so interleaved runs can be told apart.
func Execute() error {
	var (
		verbose bool
		cfgPath string
	)

	root := &cobra.Command{
		Use:          "volconform",
		Short:        "volconform brings volumetric images onto one sampling grid",
		Long:         `volconform conforms a series of 3-D volumetric images (NIfTI) onto a common voxel grid, builds resampling reference grids, and merges intra-modal series.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			logger := newLogger(os.Stderr, level).With("run", uuid.NewString()[:8])
			cmd.SetContext(withLogger(cmd.Context(), logger))
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("volconform %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&cfgPath, "config", "volconform.yaml", "path to the YAML configuration file")

	root.AddCommand(newConformCmd(&cfgPath))
	root.AddCommand(newReferenceCmd(&cfgPath))
	root.AddCommand(newReorientCmd(&cfgPath))
	root.AddCommand(newMergeCmd(&cfgPath))
	root.AddCommand(newFixHeaderCmd(&cfgPath))
	root.AddCommand(newPreviewCmd(&cfgPath))

	return root.ExecuteContext(context.Background())
}
