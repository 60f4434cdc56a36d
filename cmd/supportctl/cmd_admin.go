package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/service"

	"github.com/spf13/cobra"
)

var tokenSubject string

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Print a signed admin access token",
	Long: `Sign an admin access token with JWT_SECRET and JWT_ACCESS_TTL, for
calling the /v1/tickets endpoints without logging in.`,
	RunE: runAdminToken,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print the bcrypt hash for ADMIN_PASSWORD_HASH",
	Long: `Hash a password for ADMIN_PASSWORD_HASH. Without an argument the
password is read from the first line of stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashPassword,
}

func init() {
	adminTokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject (defaults to ADMIN_USERNAME)")
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	subject := tokenSubject
	if subject == "" {
		subject = cfg.AdminUsername
	}

	auth := service.NewAdminAuth(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.JWTAccessTTL, logger)
	token, err := auth.IssueToken(subject)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
