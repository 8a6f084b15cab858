package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trialsite/siteaccess/pkg/auth"
)

const minSecretLen = 32

func newTokenCmd(opts *options) *cobra.Command {
	var (
		user   int64
		secret string
		issuer string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a fixture principal (local testing only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("TRIALSITE_JWT_SECRET")
			}
			if len(secret) < minSecretLen {
				return fmt.Errorf("signing secret must be at least %d bytes; pass --secret or set TRIALSITE_JWT_SECRET", minSecretLen)
			}
			if user <= 0 {
				return fmt.Errorf("--user is required")
			}

			s, err := loadSite(cmd.Context(), opts.fixturePath, opts.log)
			if err != nil {
				return err
			}
			p, err := s.principal(user)
			if err != nil {
				return err
			}
			if !p.Active {
				opts.log.Warnf("principal %d is inactive; the server will reject this token", p.ID)
			}

			token, err := auth.NewTokenManager([]byte(secret), issuer).Issue(p, ttl)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"token":      token,
					"principal":  p,
					"expires_in": ttl.String(),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().Int64Var(&user, "user", 0, "Fixture principal id")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (default $TRIALSITE_JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", "trialsite-identity", "Token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
