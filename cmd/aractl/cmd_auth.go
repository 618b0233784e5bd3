package main

import (
	"fmt"
	"time"

	"aramaster/internal/pkg/auth"

	"github.com/spf13/cobra"
)

var tokenFlags struct {
	subject string
	role    string
	ttl     time.Duration
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with the configured JWT secret",
	RunE:  runToken,
}

var hashKeyFlags struct {
	generate bool
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Hash a CI API key for security.auth.api_key_hashes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHashKey,
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenFlags.subject, "subject", "", "token subject, usually the operator name")
	f.StringVar(&tokenFlags.role, "role", auth.RoleReader, "admin, indexer or reader")
	f.DurationVar(&tokenFlags.ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_expire)")
	_ = tokenCmd.MarkFlagRequired("subject")

	hashKeyCmd.Flags().BoolVar(&hashKeyFlags.generate, "generate", false, "generate a new random key and print it with its hash")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ttl := tokenFlags.ttl
	if ttl <= 0 {
		ttl = cfg.Security.JWT.AccessTokenExpire
	}
	manager := auth.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, ttl)
	token, expiresAt, err := manager.GenerateToken(tokenFlags.subject, tokenFlags.role)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func runHashKey(cmd *cobra.Command, args []string) error {
	var key string
	switch {
	case hashKeyFlags.generate:
		generated, err := auth.GenerateKey()
		if err != nil {
			return err
		}
		key = generated
	case len(args) == 1:
		key = args[0]
	default:
		return fmt.Errorf("pass a key or --generate")
	}

	hash, err := auth.NewKeyHasher(nil).Hash(key)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if hashKeyFlags.generate {
		fmt.Fprintf(out, "key:  %s\n", key)
	}
	fmt.Fprintf(out, "hash: %s\n", hash)
	return nil
}
