package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a reconciliation sweep immediately",
	Long: `Audit the job queue against the posts table and repair drift:
overdue posts without a job get one, stalled delayed jobs are promoted,
and recently failed posts are put back on the schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		secret := viper.GetString("secret")
		if secret == "" {
			cmd.Println("Internal secret not found. Please set it using the --secret flag or the POSTPILOT_SECRET environment variable")
			return
		}

		client := NewPostClient(viper.GetString("url"), secret)

		resp, err := client.Sweep()
		if err != nil {
			cmd.Printf("Error running sweep: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("Sweep finished: %d processed, %d retried\n", resp.ProcessedCount, resp.RetriedCount)
		for _, ref := range resp.Processed {
			cmd.Printf("  %s  %s\n", ref.Action, ref.ID)
		}
		for _, ref := range resp.Retried {
			cmd.Printf("  %s  %s\n", ref.Action, ref.ID)
		}
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
