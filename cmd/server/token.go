package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Setlist/internal/adapters/auth"
	"github.com/dkeye/Setlist/internal/config"
	"github.com/dkeye/Setlist/internal/domain"
)

// tokenCmd issues access tokens for local testing and for installations
// without an external identity service.
func tokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		user string
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			secret, err := secretFor(cfg)
			if err != nil {
				return err
			}
			v, err := auth.NewJWTVerifier(secret)
			if err != nil {
				return err
			}
			tok, err := v.Issue(domain.UserID(user), name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user id (token subject)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
