package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/campaign-engine/internal/model"
	"github.com/sells-group/campaign-engine/internal/store"
)

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "Inspect campaigns",
	Long:  "Commands for listing campaigns and viewing their run details and transition history.",
}

var campaignsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		tenant, _ := cmd.Flags().GetString("tenant")
		status, _ := cmd.Flags().GetString("status")
		campaignType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		campaigns, err := st.ListCampaigns(ctx, store.CampaignFilter{
			TenantID: tenant,
			Status:   model.CampaignStatus(status),
			Type:     model.CampaignType(campaignType),
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "campaigns list")
		}

		if len(campaigns) == 0 {
			fmt.Fprintln(os.Stderr, "No campaigns found.")
			return nil
		}

		formatCampaignsList(os.Stdout, campaigns)
		return nil
	},
}

var campaignsShowCmd = &cobra.Command{
	Use:   "show <campaign-id>",
	Short: "Show full details of a campaign, including its transition log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		c, err := st.GetCampaign(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaigns show")
		}
		transitions, err := st.ListTransitions(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "campaigns show transitions")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"campaign":    c,
			"transitions": transitions,
		})
	},
}

func init() {
	campaignsListCmd.Flags().String("tenant", "", "filter by tenant id")
	campaignsListCmd.Flags().String("status", "", "filter by status (draft, queued, running, completed, failed, cancelled)")
	campaignsListCmd.Flags().String("type", "", "filter by campaign type (area_search, gap_analysis, custom_query, company_list, similar_business)")
	campaignsListCmd.Flags().Int("limit", 50, "max number of campaigns to display")

	campaignsCmd.AddCommand(campaignsListCmd)
	campaignsCmd.AddCommand(campaignsShowCmd)
	rootCmd.AddCommand(campaignsCmd)
}

// formatCampaignsList writes a tabular list of campaigns to w.
func formatCampaignsList(out io.Writer, campaigns []model.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTENANT\tNAME\tTYPE\tSTATUS\tTARGETS\tLEADS\tDUPES\tERRORS\tCREATED")

	for _, c := range campaigns {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			c.ID,
			c.TenantID,
			truncate(c.Name, 30),
			c.Type,
			c.Status,
			c.Counters.TargetsFound,
			c.Counters.LeadsCreated,
			c.Counters.DuplicatesSkipped,
			c.Counters.ErrorsCount,
			c.CreatedAt.Format(time.RFC3339),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
