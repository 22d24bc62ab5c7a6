package cli

import (
	"fmt"
	"jobtracker/internal/health"
	"time"

	"github.com/spf13/cobra"
)

// NewPingCmd creates the 'ping' command reporting backend readiness
func NewPingCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured backend is reachable",
		Long: `Run the readiness checks of the configured backend and print their
results. A degraded backend (open circuit breaker) still exits 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := a.wire(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			resp := rt.Health.Readiness(cmd.Context())
			out := cmd.OutOrStdout()
			styles := NewRenderer(out).Styles()

			for _, name := range resp.Names() {
				result := resp.Checks[name]
				style, icon := styles.Success, IconComplete
				switch result.Status {
				case health.StatusUnhealthy:
					style, icon = styles.Error, IconFailed
				case health.StatusDegraded:
					style, icon = styles.Warning, IconInProgress
				}
				line := fmt.Sprintf("%s %s", style.Render(icon), name)
				if result.Message != "" {
					line += ": " + result.Message
				}
				if result.Duration > 0 {
					line += "  " + styles.Muted.Render(result.Duration.Round(time.Millisecond).String())
				}
				fmt.Fprintln(out, line)
			}

			summary := fmt.Sprintf("%s backend is %s", cfg.Backend, resp.Status)
			if resp.Status == health.StatusUnhealthy {
				fmt.Fprintln(out, styles.Error.Render(summary))
				return &ExitError{Code: ExitFailure, Err: fmt.Errorf("backend is %s", resp.Status), Reported: true}
			}
			fmt.Fprintln(out, styles.Success.Render(summary))
			return nil
		},
	}

	return cmd
}
