package main

import (
	"context"
	"fmt"
	"time"

	"chat-server/internal/models"
	"chat-server/pkg/chatclient"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
	loginRegister string
)

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")
	loginCmd.Flags().StringVar(&loginRegister, "register", "", "create the account first with this username")
	loginCmd.MarkFlagRequired("email")
	loginCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		api := chatclient.NewAPI(cfg.Server, "")
		var resp *models.LoginResponse
		if loginRegister != "" {
			resp, err = api.Register(ctx, models.RegisterRequest{
				Username: loginRegister,
				Email:    loginEmail,
				Password: loginPassword,
			})
		} else {
			resp, err = api.Login(ctx, loginEmail, loginPassword)
		}
		if err != nil {
			return err
		}

		cfg.Auth = ConfigAuth{
			Token:    resp.Token,
			UserID:   resp.User.ID,
			Username: resp.User.Username,
		}
		if err := saveConfig(cfg); err != nil {
			return err
		}

		fmt.Printf("Logged in as %s (%s)\n", resp.User.Username, resp.User.ID)
		return nil
	},
}
