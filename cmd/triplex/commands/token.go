package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/auth"
	"github.com/triplexrpc/triplex/pkg/config"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
	tokenClaims  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for WebSocket clients",
	Long: `Mint an HS256 bearer token signed with the configured JWT secret.

Clients present the token on WebSocket upgrade (Authorization header or
?token= query parameter). The server verifies it with the same secret and
attaches the resulting principal to the connection.

Examples:
  # Mint a token for the default subject, valid 24h
  triplex token

  # Mint a token for a named subject with custom lifetime
  triplex token --subject alice --ttl 1h

  # Attach extra claims
  triplex token --subject alice --claim role=admin --claim team=core`,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "triplexctl", "Token subject (sub claim)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringArrayVar(&tokenClaims, "claim", nil, "Extra claim as key=value (repeatable)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return err
	}

	if cfg.Security.JWTSecret == "" {
		return fmt.Errorf("no jwt_secret configured; run 'triplex init' or set TRIPLEX_SECURITY_JWT_SECRET")
	}

	extra, err := parseClaims(tokenClaims)
	if err != nil {
		return err
	}

	svc, err := auth.NewService(cfg.Security.JWTSecret)
	if err != nil {
		return err
	}

	token, err := svc.Mint(tokenSubject, tokenTTL, extra)
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// parseClaims converts key=value pairs into a claims map.
func parseClaims(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	claims := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid claim %q (expected key=value)", pair)
		}
		claims[key] = value
	}
	return claims, nil
}
