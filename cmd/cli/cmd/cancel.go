package cmd

import (
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [job_id]",
	Short: "Cancel a job",
	Long:  `Stop a job that has not finished. Cancelling a finished job is rejected with 409.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().CancelJob(args[0])
		if err != nil {
			printAPIError(cmd, "Cancel", err)
			return
		}
		cmd.Printf("✓ Job %s %s\n", result.JobID, result.Status)
		if result.Message != "" {
			cmd.Println(result.Message)
		}
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
