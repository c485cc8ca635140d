// Command token prints a bearer token for the catalog write endpoints,
// signed with the JWT_SECRET the API server is configured with.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrine/service/internal/auth"
	"github.com/vitrine/service/internal/config"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for product writes",
	Long: `Issue an HS256 bearer token accepted by the create, update and delete
product endpoints. The secret is read from JWT_SECRET (or .env).

Examples:
  token
  token --sub deploy-bot --ttl 24h`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runToken,
}

func init() {
	rootCmd.Flags().StringVar(&tokenSubject, "sub", "catalog-admin", "Token subject")
	rootCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTTL, "Token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	token, err := auth.IssueToken(cfg.JWTSecret, tokenSubject, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
