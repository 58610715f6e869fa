package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Long:  `List review jobs, most recent first. The controller defaults to 20 entries and caps the page at 100.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		result, err := newClient().ListJobs(limit, offset)
		if err != nil {
			printAPIError(cmd, "List", err)
			return
		}

		if len(result.Jobs) == 0 {
			cmd.Println("No jobs found.")
			return
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tSTATUS\tSTATE\tSTARTED\tITEMS")
		for _, job := range result.Jobs {
			started := "-"
			if job.StartDate != nil {
				started = job.StartDate.Format(time.RFC3339)
			}
			items := "-"
			if len(job.Shoes) > 0 {
				items = fmt.Sprintf("%d", len(job.Shoes))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", job.JobID, job.Status, job.State, started, items)
		}
		w.Flush()
		cmd.Printf("\n%d job(s)\n", result.Total)
	},
}

func init() {
	listCmd.Flags().Int("limit", 0, "Maximum number of jobs (server default when omitted)")
	listCmd.Flags().Int("offset", 0, "Number of jobs to skip")

	rootCmd.AddCommand(listCmd)
}
