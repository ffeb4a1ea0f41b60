package cli

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/eqiva-core/internal/api"
	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// scanListener prints each thermostat once and a running count of
// advertisements to stderr.
type scanListener struct {
	out, progress io.Writer

	mu   sync.Mutex
	seen map[string]bool
}

func (l *scanListener) Seen(ad eqiva.Advertisement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[ad.Address] = true
	_, _ = fmt.Fprintf(l.progress, " %d bluetooth devices seen\r", len(l.seen))
}

func (l *scanListener) Found(p eqiva.Peripheral) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.out, "%s     %s\n", p.Address, p.Name)
}

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan for Eqiva Smart Radiator Thermostats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			radio, err := a.opts.OpenRadio(a.logger)
			if err != nil {
				return fmt.Errorf("opening bluetooth adapter: %w", err)
			}

			listener := &scanListener{out: a.opts.Stdout, progress: a.opts.Stderr, seen: make(map[string]bool)}
			scanner := eqiva.NewScanner(eqiva.ScannerOptions{
				Radio:    radio,
				Clock:    a.opts.Clock,
				Logger:   a.logger,
				Listener: listener,
			})

			_, _ = fmt.Fprintln(a.opts.Stdout, "MAC-Address           Thermostat name")
			_, err = scanner.Discover(ctx, time.Duration(a.v.GetInt("eqiva.scan_timeout"))*time.Second)
			return err
		},
	}
}

func (a *app) aliasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aliases",
		Short: "Print known aliases from the alias file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			aliases, err := a.aliases()
			if err != nil {
				return err
			}
			if s := aliases.String(); s != "" {
				_, err = fmt.Fprintln(a.opts.Stdout, s)
			}
			return err
		},
	}
}

func (a *app) tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the eqivad HTTP API",
		Long: `Issue a bearer token for the eqivad HTTP API.

The token is signed with security.jwt.secret from --config, or with
EQIVA_JWT_SECRET. A zero --ttl issues a token that never expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("ttl") {
				ttl = time.Duration(a.v.GetInt("security.jwt.access_token_ttl")) * time.Minute
			}
			token, err := api.IssueToken(a.v.GetString("security.jwt.secret"), subject, ttl, a.opts.Clock.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.opts.Stdout, token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "eqiva-cli", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default security.jwt.access_token_ttl minutes)")
	return cmd
}
