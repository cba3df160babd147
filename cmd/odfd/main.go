// Command odfd is the command-line entrypoint for the Open Data Fabric
// reference workspace: a single binary that drives a dataset repository
// rooted in the current directory (or --workspace), with zero external
// dependencies for the common path and an optional engine daemon for
// transforms.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/odf/internal/obslog"
	"github.com/cuemby/odf/pkg/dataset"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "odfd",
	Short: "Open Data Fabric - content-addressed, verifiable dataset management",
	Long: `odfd manages a workspace of content-addressed datasets: append-only
metadata chains over immutable object storage, with SQL-defined
derivative transforms and a fail-safe sync protocol for mirroring
datasets between workspaces.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"odfd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("workspace", ".", "Workspace root directory")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(transformCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(lineageCmd)
	rootCmd.AddCommand(searchCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	obslog.Init(obslog.Config{
		Level:      obslog.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// openRepo opens the workspace repository rooted at the --workspace flag,
// through dataset.NewRepository, which creates the bare <workspace>/datasets
// directory on first use; the catalog file is written when the first dataset
// is registered.
func openRepo(cmd *cobra.Command) (*dataset.Repository, error) {
	root, _ := cmd.Flags().GetString("workspace")
	repo, err := dataset.NewRepository(root)
	if err != nil {
		return nil, fmt.Errorf("open workspace %q: %w", root, err)
	}
	return repo, nil
}
