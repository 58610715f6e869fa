package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reviewplane/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Get status of a job",
	Long: `Retrieve the status of a review job: its normalized status (scheduled, running,
success, failed, cancelled, unknown), the engine state, timestamps and the latest message.

With --watch the command polls until the job reaches a terminal status.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")

		client := newClient()
		lastStatus := ""
		for {
			job, err := client.GetJob(jobID)
			if err != nil {
				printAPIError(cmd, "Status", err)
				return
			}

			if !watch {
				printStatus(cmd, *job)
				return
			}
			if job.Status != lastStatus {
				printStatus(cmd, *job)
				lastStatus = job.Status
			}
			if isTerminal(job.Status) {
				return
			}
			time.Sleep(interval)
		}
	},
}

func isTerminal(status string) bool {
	switch status {
	case api.StatusSuccess, api.StatusFailed, api.StatusCancelled:
		return true
	}
	return false
}

func printStatus(cmd *cobra.Command, job api.JobStatusResponse) {
	// Header with status icon
	icon := statusIcon(job.Status)
	cmd.Printf("%s %sJob Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, job.JobID)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(job.Status))
	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, job.State)
	if job.Message != "" {
		cmd.Printf("%sMessage:%s     %s\n", colorDim, colorReset, job.Message)
	}
	if len(job.Shoes) > 0 {
		cmd.Printf("%sItems:%s       %d\n", colorDim, colorReset, len(job.Shoes))
		for _, shoe := range job.Shoes {
			cmd.Printf("  - %s\n", shoe.Name)
		}
	}

	cmd.Printf("%sStarted:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(job.StartDate))

	// Duration if both times available
	if job.StartDate != nil && job.EndDate != nil {
		duration := job.EndDate.Sub(*job.StartDate)
		cmd.Printf("%sFinished:%s    %s %s(%s)%s\n", colorDim, colorReset,
			formatTimeWithRelative(job.EndDate),
			colorCyan, formatDuration(duration), colorReset)
	} else {
		cmd.Printf("%sFinished:%s    %s\n", colorDim, colorReset, formatTimeWithRelative(job.EndDate))
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case api.StatusSuccess:
		return colorGreen + "✓" + colorReset
	case api.StatusFailed:
		return colorRed + "✗" + colorReset
	case api.StatusCancelled:
		return colorDim + "⊘" + colorReset
	case api.StatusRunning:
		return colorYellow + "⏳" + colorReset
	case api.StatusScheduled:
		return colorCyan + "◯" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case api.StatusSuccess:
		return icon + " " + colorGreen + status + colorReset
	case api.StatusFailed:
		return icon + " " + colorRed + status + colorReset
	case api.StatusRunning:
		return icon + " " + colorYellow + status + colorReset
	case api.StatusScheduled:
		return icon + " " + colorCyan + status + colorReset
	case api.StatusCancelled:
		return icon + " " + status
	default:
		return status
	}
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.Flags().BoolP("watch", "w", false, "Poll until the job reaches a terminal status")
	statusCmd.Flags().Duration("interval", 5*time.Second, "Polling interval for --watch")

	rootCmd.AddCommand(statusCmd)
}
