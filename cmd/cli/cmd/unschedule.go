package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var unscheduleCmd = &cobra.Command{
	Use:   "unschedule [post_id]",
	Short: "Cancel a scheduled post",
	Long:  `Remove the post's publish job and delete the post. Already-published posts cannot be cancelled.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		postID := args[0]

		client := NewPostClient(viper.GetString("url"), viper.GetString("secret"))

		if err := client.DeletePost(postID); err != nil {
			cmd.Printf("Error cancelling post: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("Post %s cancelled\n", postID)
	},
}

func init() {
	rootCmd.AddCommand(unscheduleCmd)
}
