package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "reviewctl",
	Short: "Reviewctl is a command line tool for interacting with the reviewplane controller",
	Long: `reviewctl is the command-line interface for the reviewplane batch review service.

reviewplane accepts batches of products, runs one durable workflow per batch that
triggers a review search for every item, waits, and then triggers summary
aggregation. The controller exposes the HTTP API this tool talks to; the
workflow engine and its workers do the work.

Common workflows:

  Schedule a batch:
    reviewctl schedule "Nike Air Jordan 1" "Adidas Samba" --max-results 5 --wait 10

  Schedule a batch for later:
    reviewctl schedule "Hoka Clifton 9" --start-at 2030-01-02T09:00:00Z

  Follow a job until it finishes:
    reviewctl status <job-id> --watch

  List recent jobs:
    reviewctl list --limit 20

  Cancel a job:
    reviewctl cancel <job-id>

Configuration:
  Set the API endpoint via environment variable or a config file:
    REVIEWPLANE_URL    API endpoint (default: http://localhost:6161)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".reviewctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".reviewctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "REVIEWPLANE_VARNAME"
	viper.SetEnvPrefix("REVIEWPLANE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newClient builds an API client for the configured controller URL.
func newClient() *JobClient {
	return NewJobClient(viper.GetString("url"))
}

// printAPIError reports a failed call the same way in every command.
func printAPIError(cmd *cobra.Command, action string, err error) {
	if apiErr, ok := err.(*APIError); ok {
		cmd.Printf("%s failed (%d): %s\n", action, apiErr.StatusCode, apiErr.Message)
		return
	}
	cmd.Printf("%s failed: %v\n", action, err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.reviewctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "reviewplane controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
