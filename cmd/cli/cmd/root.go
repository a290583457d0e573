package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "postctl",
	Short: "Postctl is a command line tool for operating the postpilot scheduler",
	Long: `postctl is the command-line interface for postpilot, the delayed
publication pipeline for business-profile posts.

Posts are persisted with a target publish time and a durable delayed job;
a worker fleet drains due jobs and pushes the content to the Business
Profile API. An hourly reconciliation sweep re-injects anything that was
missed while the pipeline was down.

Common workflows:

  Schedule a post:
    postctl schedule --location <id> --content "Hello" --at 2026-09-01T10:00:00Z --user owner@example.com

  Cancel a scheduled post:
    postctl unschedule <post-id>

  Trigger a reconciliation sweep by hand:
    postctl sweep

  Inspect the job queue:
    postctl stats

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    POSTPILOT_API_URL    API endpoint (default: http://localhost:7070)
    POSTPILOT_SECRET     Shared secret for the /internal endpoints`,
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

		// Search config in home directory with name ".postctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".postctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "POSTPILOT_VARNAME"
	viper.SetEnvPrefix("POSTPILOT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.postctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:7070", "Postpilot Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("secret", "s", "", "Shared secret for internal endpoints")
	viper.BindPFlag("secret", rootCmd.PersistentFlags().Lookup("secret"))
}
