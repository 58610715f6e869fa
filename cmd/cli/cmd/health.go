package cmd

import (
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check controller health",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().Health()
		if result == nil {
			printAPIError(cmd, "Health check", err)
			return
		}

		cmd.Printf("Status: %s\n", result.Status)
		names := make([]string, 0, len(result.Components))
		for name := range result.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cmd.Printf("  %-8s %s\n", name, result.Components[name])
		}
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
