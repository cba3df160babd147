package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/odf/pkg/odf"
	"github.com/cuemby/odf/pkg/provenance"
)

var lineageCmd = &cobra.Command{
	Use:   "lineage NAME",
	Short: "Print the dataset DAG NAME was derived from",
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

		lineage, err := provenance.Trace(ctx, repo, ref)
		if err != nil {
			return fmt.Errorf("failed to trace lineage: %v", err)
		}

		printLineage(lineage, 0)
		return nil
	},
}

func printLineage(l *provenance.Lineage, depth int) {
	fmt.Printf("%s%s (%s)\n", strings.Repeat("  ", depth), l.DatasetName, l.Kind)
	for _, in := range l.Inputs {
		printLineage(in, depth+1)
	}
}
