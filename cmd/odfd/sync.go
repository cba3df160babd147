package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/syncsvc"
)

var pullCmd = &cobra.Command{
	Use:   "pull SRC DST",
	Short: "Mirror SRC's metadata chain and referenced objects into DST",
	Long: `Pull advances DST's chain to match SRC's using the fail-safe sync
protocol: every object SRC's new blocks reference is transferred and
verified before any block is written, and DST's ref only moves in a
single atomic compare-and-swap once the whole transfer has succeeded.

If DST doesn't exist yet, pass --create to have it adopt SRC's identity
on first sync.`,
	Args: cobra.ExactArgs(2),
	RunE: runSync,
}

var pushCmd = &cobra.Command{
	Use:   "push SRC DST",
	Short: "Alias for pull with SRC and DST reversed in spirit, same mechanics",
	Long: `Push is mechanically identical to pull: both sides live in the
same workspace catalog, so there is no separate "upload" transport. It
exists so the direction you intend to type reads naturally.`,
	Args: cobra.ExactArgs(2),
	RunE: runSync,
}

func init() {
	for _, cmd := range []*cobra.Command{pullCmd, pushCmd} {
		cmd.Flags().Bool("force", false, "Discard DST's own history if it has diverged from SRC")
		cmd.Flags().Bool("create", false, "Create DST if it does not already exist")
		cmd.Flags().Bool("trust-source-hashes", false, "Skip re-hashing transferred objects, trusting SRC's recorded hashes")
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openRepo(cmd)
	if err != nil {
		return err
	}

	srcRef, err := odf.ParseDatasetRefAny(args[0])
	if err != nil {
		return fmt.Errorf("invalid source reference: %v", err)
	}
	force, _ := cmd.Flags().GetBool("force")
	create, _ := cmd.Flags().GetBool("create")
	trust, _ := cmd.Flags().GetBool("trust-source-hashes")

	svc := &syncsvc.Service{Repo: repo}
	result, err := svc.Sync(ctx, srcRef, odf.DatasetName(args[1]), syncsvc.SyncOpts{
		Force:             force,
		CreateIfNotExists: create,
		TrustSourceHashes: trust,
	}, &cliListener{})
	if err != nil {
		return fmt.Errorf("sync failed: %v", err)
	}

	switch result.Outcome {
	case syncsvc.SyncUpToDate:
		fmt.Println("✓ Already up to date")
	case syncsvc.SyncUpdated:
		fmt.Printf("✓ Synced %d block(s)\n", result.BlocksAdded)
		fmt.Printf("  %s → %s\n", shortHash(result.OldHead), shortHash(result.NewHead))
		fmt.Printf("  Transferred: %d bytes\n", result.Stats.Src.Bytes)
	}
	return nil
}

func shortHash(h interface{ String() string }) string {
	s := h.String()
	if s == "" {
		return "<none>"
	}
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// cliListener prints stage transitions to stdout; everything else from
// syncsvc.Listener is left at its zero behavior.
type cliListener struct {
	syncsvc.NullListener
}

func (cliListener) OnStageChanged(stage syncsvc.Stage, stats *syncsvc.Stats) {
	fmt.Printf("  [%s]\n", stage)
}
