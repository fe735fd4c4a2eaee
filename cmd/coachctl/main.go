package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fitcoach/internal/client/sdk"
	"fitcoach/internal/client/session"
	"fitcoach/internal/config"
	"fitcoach/internal/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime is the state shared by every subcommand, resolved once in the
// root's PersistentPreRunE.
type runtime struct {
	cfg     *config.ClientConfig
	logger  zerolog.Logger
	persist session.Persister
}

// NewRootCmd constructs the root CLI command; exposed for unit testing.
func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:           "coachctl",
		Short:         "Command line client for the fitcoach API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(cmd.Flags())
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = log.NewWithWriter(cmd.ErrOrStderr(), cfg.Environment, cfg.LogLevel)

			store, err := session.NewFileStore(cfg.StateDir)
			if err != nil {
				return fmt.Errorf("open state dir: %w", err)
			}
			rt.persist = store
			return nil
		},
	}

	rootCmd.PersistentFlags().String("base-url", "", "API base URL (default http://localhost:8080/api/v1)")
	rootCmd.PersistentFlags().String("state-dir", "", "Directory holding the saved session")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(newLoginCmd(rt))
	rootCmd.AddCommand(newRegisterCmd(rt))
	rootCmd.AddCommand(newLogoutCmd(rt))
	rootCmd.AddCommand(newWhoamiCmd(rt))
	rootCmd.AddCommand(newSessionsCmd(rt))
	rootCmd.AddCommand(newWorkoutsCmd(rt))
	rootCmd.AddCommand(newNotificationsCmd(rt))
	rootCmd.AddCommand(newWatchCmd(rt))

	return rootCmd
}

// client starts an sdk client over the saved session.
func (rt *runtime) client(ctx context.Context) (*sdk.Client, error) {
	c, err := sdk.New(rt.cfg, rt.persist, rt.logger)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// authedClient is client plus a check that the saved session is still valid.
func (rt *runtime) authedClient(ctx context.Context) (*sdk.Client, error) {
	c, err := rt.client(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Auth.Snapshot().Authenticated() {
		c.Close()
		return nil, fmt.Errorf("not logged in, run coachctl login first")
	}
	return c, nil
}

// deviceID returns the id this installation registers sessions under,
// minting one on first use.
func (rt *runtime) deviceID() string {
	id, err := rt.persist.Load(session.KeyDeviceID)
	if err == nil && id != "" {
		return id
	}
	id = ulid.Make().String()
	if err := rt.persist.Save(session.KeyDeviceID, id); err != nil {
		rt.logger.Warn().Err(err).Msg("persist device id failed")
	}
	return id
}

func deviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "coachctl"
	}
	return "coachctl@" + host
}
