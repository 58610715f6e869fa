package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"reviewplane/pkg/api"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [name...]",
	Short: "Schedule a review batch",
	Long: `Submit a batch of product names. The controller creates one workflow run that
searches reviews for every item, waits, then triggers summary aggregation.

Example:
  reviewctl schedule "Nike Air Jordan 1" "Adidas Samba"
  reviewctl schedule "Hoka Clifton 9" --max-results 10 --wait 0
  reviewctl schedule "On Cloudmonster" --start-at 2030-01-02T09:00:00Z`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()

		req := api.ScheduleRequest{Shoes: make([]api.ShoeRequest, 0, len(args))}

		var maxResults *int
		if flags.Changed("max-results") {
			n, _ := flags.GetInt("max-results")
			maxResults = &n
		}
		for _, name := range args {
			req.Shoes = append(req.Shoes, api.ShoeRequest{Name: name, MaxResults: maxResults})
		}

		if flags.Changed("wait") {
			wait, _ := flags.GetInt("wait")
			req.WaitMinutes = &wait
		}

		if startAt, _ := flags.GetString("start-at"); startAt != "" {
			t, err := time.Parse(time.RFC3339, startAt)
			if err != nil {
				cmd.Printf("Error: --start-at must be RFC3339 (e.g. 2030-01-02T09:00:00Z): %v\n", err)
				return
			}
			t = t.UTC()
			req.StartTime = &t
		}

		result, err := newClient().Schedule(req)
		if err != nil {
			printAPIError(cmd, "Schedule", err)
			return
		}

		cmd.Printf("✓ %s\nJob ID:    %s\nStatus:    %s\nScheduled: %s\nItems:     %d\n",
			result.Message, result.JobID, result.Status,
			result.ScheduledTime.Format(time.RFC3339), result.ShoesCount)
	},
}

func init() {
	flags := scheduleCmd.Flags()
	flags.Int("max-results", 0, "Search results per item (server default when omitted)")
	flags.Int("wait", 0, "Minutes between search and aggregation (server default when omitted)")
	flags.String("start-at", "", "UTC start time in RFC3339 (immediately when omitted)")

	rootCmd.AddCommand(scheduleCmd)
}
