package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/odf/pkg/objectrepo"
	"github.com/cuemby/odf/pkg/searchsvc"
)

var searchCmd = &cobra.Command{
	Use:   "search REPO-URL [NAME-PREFIX]",
	Short: "List dataset names found at a repository URL (file:// or s3://)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 2 {
			prefix = args[1]
		}

		var s3cfg *objectrepo.S3Config
		endpoint, _ := cmd.Flags().GetString("s3-endpoint")
		if endpoint != "" {
			accessKey, _ := cmd.Flags().GetString("s3-access-key")
			secretKey, _ := cmd.Flags().GetString("s3-secret-key")
			s3cfg = &objectrepo.S3Config{
				Endpoint:        endpoint,
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				UseSSL:          true,
			}
		}

		svc := &searchsvc.Service{S3: s3cfg}
		names, err := svc.Search(context.Background(), args[0], prefix)
		if err != nil {
			return fmt.Errorf("search failed: %v", err)
		}
		if len(names) == 0 {
			fmt.Println("No datasets found")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("s3-endpoint", "", "S3-compatible endpoint (required for s3:// repository URLs)")
	searchCmd.Flags().String("s3-access-key", "", "S3 access key ID")
	searchCmd.Flags().String("s3-secret-key", "", "S3 secret access key")
}
