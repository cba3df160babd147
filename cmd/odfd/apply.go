package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/odf/pkg/dataset"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create a dataset from a snapshot manifest",
	Long: `Apply a dataset snapshot manifest: a Seed plus the sequence of
events to build atomically on top of it.

Examples:
  # Create a root dataset that ingests from a polling source
  odfd apply -f root-dataset.yaml

  # Create a derivative dataset with a SQL transform
  odfd apply -f derived-dataset.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "Snapshot manifest YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var snapshot dataset.DatasetSnapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}

	repo, err := openRepo(cmd)
	if err != nil {
		return err
	}

	id, err := repo.Create(context.Background(), snapshot)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %v", err)
	}

	fmt.Printf("✓ Dataset created: %s\n", snapshot.Name)
	fmt.Printf("  ID:   %s\n", id)
	fmt.Printf("  Kind: %s\n", snapshot.Kind)
	return nil
}
