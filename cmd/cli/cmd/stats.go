package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the per-state job counts of the publish queue",
	Run: func(cmd *cobra.Command, args []string) {
		secret := viper.GetString("secret")
		if secret == "" {
			cmd.Println("Internal secret not found. Please set it using the --secret flag or the POSTPILOT_SECRET environment variable")
			return
		}

		client := NewPostClient(viper.GetString("url"), secret)

		resp, err := client.QueueStats()
		if err != nil {
			cmd.Printf("Error fetching queue stats: %s\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "STATE\tCOUNT")
		fmt.Fprintf(w, "delayed\t%d\n", resp.Counts.Delayed)
		fmt.Fprintf(w, "ready\t%d\n", resp.Counts.Ready)
		fmt.Fprintf(w, "active\t%d\n", resp.Counts.Active)
		fmt.Fprintf(w, "completed\t%d\n", resp.Counts.Completed)
		fmt.Fprintf(w, "failed\t%d\n", resp.Counts.Failed)
		w.Flush()

		if len(resp.Failed) > 0 {
			cmd.Println("\nRecent failures:")
			for _, job := range resp.Failed {
				reason := ""
				if job.Error != nil {
					reason = *job.Error
				}
				cmd.Printf("  %s (attempts %d) %s\n", job.ID, job.Attempts, reason)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
