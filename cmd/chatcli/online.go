package main

import (
	"context"
	"fmt"
	"time"

	"chat-server/pkg/chatclient"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(onlineCmd)
}

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "List users who are online now",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireLogin()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		users, err := chatclient.NewAPI(cfg.Server, cfg.Auth.Token).Online(ctx)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("Nobody is online.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%s  active %s\n", u.UserID, u.LastActivity.Local().Format(time.Kitchen))
		}
		return nil
	},
}
