package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/auth"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Prints a bearer token for the monitor /status endpoint.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Monitor.JWTSecret == "" || cfg.Monitor.AdminPassword == "" {
			return errors.New("MONITOR_JWT_SECRET and MONITOR_ADMIN_PASSWORD must be set")
		}
		authenticator, err := auth.NewAuthenticator(auth.Config{
			JWTSecret:     cfg.Monitor.JWTSecret,
			AdminPassword: cfg.Monitor.AdminPassword,
			TokenDuration: cfg.Monitor.TokenTTL,
		})
		if err != nil {
			return err
		}
		token, expires, err := authenticator.Issue("admin")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		logger.Debug("issued monitor token", "expires_at", expires)
		return nil
	},
}
