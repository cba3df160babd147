package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/odf/pkg/dataset"
	"github.com/cuemby/odf/pkg/odf"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List datasets in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		repo, err := openRepo(cmd)
		if err != nil {
			return err
		}

		names, err := repo.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list datasets: %v", err)
		}
		if len(names) == 0 {
			fmt.Println("No datasets found")
			return nil
		}

		fmt.Printf("%-30s %-12s %-10s %s\n", "NAME", "KIND", "BLOCKS", "SIZE")
		for _, name := range names {
			ds, err := repo.Open(ctx, name)
			if err != nil {
				fmt.Printf("%-30s <error: %v>\n", name, err)
				continue
			}
			summary, err := ds.GetSummary(ctx, dataset.SummaryOpts{})
			if err != nil {
				fmt.Printf("%-30s <error: %v>\n", name, err)
				continue
			}
			fmt.Printf("%-30s %-12s %-10d %s\n", name, summary.Kind, summary.NumBlocks, formatBytes(summary.DataSize))
		}
		return nil
	},
}

var logCmd = &cobra.Command{
	Use:   "log NAME",
	Short: "Show a dataset's metadata chain, newest block first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		repo, err := openRepo(cmd)
		if err != nil {
			return err
		}

		ref, err := odf.ParseDatasetRefAny(args[0])
		if err != nil {
			return fmt.Errorf("invalid dataset reference: %v", err)
		}
		_, ds, err := repo.OpenByRef(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to open dataset: %v", err)
		}

		it, err := ds.Chain.IterBlocks(ctx)
		if err != nil {
			return fmt.Errorf("failed to iterate chain: %v", err)
		}
		for {
			block, ok, err := it.Next()
			if err != nil {
				return fmt.Errorf("failed to read block: %v", err)
			}
			if !ok {
				break
			}
			fmt.Printf("seq %-6d %-20s %s\n", block.SequenceNumber, eventKind(block.Event), block.SystemTime.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Remove a dataset from the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo(cmd)
		if err != nil {
			return err
		}
		if err := repo.Delete(context.Background(), odf.DatasetName(args[0])); err != nil {
			return fmt.Errorf("failed to delete dataset: %v", err)
		}
		fmt.Printf("✓ Dataset deleted: %s\n", args[0])
		return nil
	},
}

func eventKind(e odf.MetadataEvent) string {
	return fmt.Sprintf("%T", e)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for q := n / unit; q >= unit; q /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
