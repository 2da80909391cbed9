package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"claude_gateway/internal/catalog"
	"claude_gateway/internal/providers"
)

func init() {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Print the merged model catalog of the configured endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dispatcher := providers.NewClaudeClient(cfg.Claude.RequestTimeout)
			defer dispatcher.Close()

			endpoints := catalog.NewEndpointSet(true, cfg.Claude.BaseURLs, cfg.Claude.APIKeys)
			snap := catalog.New(endpoints, dispatcher, cfg.Claude.FetchTimeout).Refresh(cmd.Context())

			return printCatalog(cmd, endpoints, snap)
		},
	}
	rootCmd.AddCommand(modelsCmd)
}

func printCatalog(cmd *cobra.Command, endpoints *catalog.EndpointSet, snap *catalog.Snapshot) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENDPOINT")
	for _, e := range snap.Entries {
		url := ""
		if ep, ok := endpoints.Endpoint(e.EndpointIndex); ok {
			url = ep.BaseURL
		}
		fmt.Fprintf(tw, "%s\t%s\t%d (%s)\n", e.ID, e.Name, e.EndpointIndex, url)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d models\n", snap.Len())
	return nil
}
