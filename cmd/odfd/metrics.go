package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuemby/odf/internal/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve Prometheus metrics for long-running apply/sync/transform loops",
	Long: `Starts an HTTP server exposing /metrics. Meant to run alongside a
long-lived process (a shell loop of repeated transform/sync calls, or a
future daemon mode) rather than a one-shot CLI invocation on its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		fmt.Printf("Serving metrics on http://%s/metrics\n", addr)
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	metricsCmd.Flags().String("addr", "127.0.0.1:9090", "Address to serve /metrics on")
}
