package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hamed0406/sitewatch/internal/domain"
)

var (
	siteName string
	siteUser string
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage monitored sites",
}

var sitesAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register a site and run its first check",
	Long: `Register a site with the API. A bare host gets https:// prepended.

Examples:
  sitewatch sites add https://example.com --name homepage
  sitewatch sites add example.org`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := withScheme(args[0])
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid URL %q", args[0])
		}

		var out struct {
			Site   domain.Site         `json:"site"`
			Result *domain.CheckResult `json:"result"`
		}
		in := map[string]string{"url": raw, "name": siteName, "user_id": siteUser}
		if err := newClient().do(http.MethodPost, "/api/sites", in, &out); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Added %s (%s)\n", out.Site.URL, out.Site.ID)
		if out.Result != nil {
			fmt.Fprintf(w, "  first check: %s\n", describe(*out.Result, time.Now()))
		}
		return nil
	},
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sites with their latest result",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		var sites []domain.Site
		if err := c.do(http.MethodGet, "/api/sites", nil, &sites); err != nil {
			return err
		}
		var latest []domain.LatestRow
		if err := c.do(http.MethodGet, "/api/results/latest", nil, &latest); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(sites) == 0 {
			fmt.Fprintln(w, "No sites registered yet.")
			fmt.Fprintln(w, "\nAdd one with:")
			fmt.Fprintln(w, "  sitewatch sites add <url>")
			return nil
		}

		byID := make(map[domain.SiteID]domain.LatestRow, len(latest))
		for _, r := range latest {
			byID[r.SiteID] = r
		}
		now := time.Now()
		fmt.Fprintf(w, "Sites (%d):\n\n", len(sites))
		for _, s := range sites {
			state := "active"
			if !s.Active {
				state = "paused"
			}
			fmt.Fprintf(w, "  • %s [%s]\n", s.URL, state)
			fmt.Fprintf(w, "    id: %s, added %s\n", s.ID, humanize.RelTime(s.CreatedAt, now, "ago", "from now"))
			if r, ok := byID[s.ID]; ok {
				res := domain.CheckResult{SiteID: r.SiteID, Status: r.Status, LatencyMS: r.LatencyMS, Error: r.Error, CheckedAt: r.CheckedAt}
				fmt.Fprintf(w, "    last: %s\n", describe(res, now))
			}
		}
		return nil
	},
}

func init() {
	sitesAddCmd.Flags().StringVar(&siteName, "name", "", "display name")
	sitesAddCmd.Flags().StringVar(&siteUser, "user", "", "owning user id")
	sitesCmd.AddCommand(sitesAddCmd, sitesListCmd)
	rootCmd.AddCommand(sitesCmd)
}

func withScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	return raw
}

// describe renders a check as one line, e.g. "UP 200 in 120 ms, 3 minutes ago".
func describe(r domain.CheckResult, now time.Time) string {
	state := "UP"
	if !r.Successful() {
		state = "DOWN"
	}
	detail := fmt.Sprintf("%d", r.Status)
	if r.Error != "" {
		detail = r.Error
	}
	return fmt.Sprintf("%s %s in %s ms, %s", state, detail,
		humanize.Comma(r.LatencyMS), humanize.RelTime(r.CheckedAt, now, "ago", "from now"))
}
