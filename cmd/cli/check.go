package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/sitewatch/internal/domain"
)

var checkCmd = &cobra.Command{
	Use:   "check <site-id>",
	Short: "Run a check now and print the stored result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Result domain.CheckResult `json:"result"`
		}
		if err := newClient().do(http.MethodPost, "/api/sites/"+args[0]+"/check", nil, &out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), describe(out.Result, time.Now()))
		return nil
	},
}

var uptimeCmd = &cobra.Command{
	Use:   "uptime <site-id>",
	Short: "Show uptime over the last day, week and all time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Summary domain.UptimeSummary `json:"summary"`
		}
		if err := newClient().do(http.MethodGet, "/api/sites/"+args[0]+"/uptime", nil, &out); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "day:  %6.2f%%\n", out.Summary.Day)
		fmt.Fprintf(w, "week: %6.2f%%\n", out.Summary.Week)
		fmt.Fprintf(w, "all:  %6.2f%%\n", out.Summary.All)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd, uptimeCmd)
}
