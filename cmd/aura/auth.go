package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aurabot/aura/internal/config"
	"github.com/aurabot/aura/internal/mail"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Gmail access and obtain a refresh token",
	Long: `Runs the one-time OAuth consent flow for the Gmail account aura reads.
Requires AURA_MAIL_CLIENT_ID and AURA_MAIL_CLIENT_SECRET. The granted refresh
token is printed for you to export; it is never written to the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clientID := os.Getenv("AURA_MAIL_CLIENT_ID")
		if clientID == "" {
			if cfg, err := config.Load(); err == nil {
				clientID = cfg.Mail.ClientID
			}
		}
		clientSecret := os.Getenv("AURA_MAIL_CLIENT_SECRET")
		if clientID == "" || clientSecret == "" {
			return fmt.Errorf("set AURA_MAIL_CLIENT_ID and AURA_MAIL_CLIENT_SECRET before running auth")
		}

		token, err := mail.Authorize(cmd.Context(), clientID, clientSecret, os.Stderr)
		if err != nil {
			return err
		}

		printSuccess("Authorization complete")
		fmt.Fprintln(os.Stderr, "Add the refresh token to your environment:")
		fmt.Printf("export AURA_MAIL_REFRESH_TOKEN=%s\n", token)
		return nil
	},
}
