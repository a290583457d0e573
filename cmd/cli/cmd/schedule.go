package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"postpilot/pkg/api"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Schedule a new post for publication",
	Long: `Create a post and enqueue its delayed publish job. The post is
published to the Business Profile API at the given time.

Example:
  postctl schedule --location L1 --content "Grand opening" \
    --at 2026-09-01T10:00:00Z --user owner@example.com \
    --cta LEARN_MORE --cta-url https://example.com/opening`,
	Run: func(cmd *cobra.Command, args []string) {
		location, _ := cmd.Flags().GetString("location")
		content, _ := cmd.Flags().GetString("content")
		at, _ := cmd.Flags().GetString("at")
		user, _ := cmd.Flags().GetString("user")
		image, _ := cmd.Flags().GetString("image")
		cta, _ := cmd.Flags().GetString("cta")
		ctaURL, _ := cmd.Flags().GetString("cta-url")

		if location == "" || content == "" || at == "" || user == "" {
			cmd.Println("--location, --content, --at and --user are required")
			return
		}

		scheduledAt, err := time.Parse(time.RFC3339, at)
		if err != nil {
			cmd.Printf("Invalid --at value, want RFC3339 (e.g. 2026-09-01T10:00:00Z): %v\n", err)
			return
		}

		client := NewPostClient(viper.GetString("url"), viper.GetString("secret"))

		resp, err := client.CreatePost(api.CreatePostRequest{
			LocationID:  location,
			Content:     content,
			ImageURL:    image,
			CTAType:     cta,
			CTAURL:      ctaURL,
			ScheduledAt: scheduledAt,
			UserEmail:   user,
		})
		if err != nil {
			cmd.Printf("Error scheduling post: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("Post %s scheduled for %s\n", resp.PostID, scheduledAt.Format(time.RFC3339))
		cmd.Printf("   Job ID: %s\n", resp.JobID)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringP("location", "l", "", "Location id the post belongs to")
	scheduleCmd.Flags().StringP("content", "c", "", "Post body text")
	scheduleCmd.Flags().String("at", "", "Publish time in RFC3339")
	scheduleCmd.Flags().StringP("user", "u", "", "Email of the user whose credentials publish the post")
	scheduleCmd.Flags().String("image", "", "Optional image URL")
	scheduleCmd.Flags().String("cta", "", "Optional call-to-action type (BOOK, ORDER, SHOP, LEARN_MORE, SIGN_UP, CALL)")
	scheduleCmd.Flags().String("cta-url", "", "Call-to-action target URL (not used with CALL)")
}
