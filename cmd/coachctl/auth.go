package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fitcoach/internal/client/session"
)

// readPassword prompts on a terminal and falls back to one line of stdin
// when input is piped.
func readPassword(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd(rt *runtime) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd)
				if err != nil {
					return err
				}
				password = p
			}

			c, err := rt.client(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			user, err := c.Auth.Login(cmd.Context(), session.Credentials{
				Email:      email,
				Password:   password,
				DeviceID:   rt.deviceID(),
				DeviceName: deviceName(),
			})
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s)\n", user.Email, strings.Join(user.Roles, ","))
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password; prompted for when omitted")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd(rt *runtime) *cobra.Command {
	var email, password, name, role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readPassword(cmd)
				if err != nil {
					return err
				}
				password = p
			}

			c, err := rt.client(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			user, err := c.Auth.Register(cmd.Context(), session.Registration{
				Email:      email,
				Password:   password,
				Name:       name,
				Role:       role,
				DeviceID:   rt.deviceID(),
				DeviceName: deviceName(),
			})
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password; prompted for when omitted")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "", "client or trainer")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.client(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			c.Auth.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			user, err := c.Auth.RefreshProfile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", user.ID, user.Email, user.Name, strings.Join(user.Roles, ","))
			return nil
		},
	}
}

func newSessionsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List devices signed in to this account",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			sessions, err := c.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE\tNAME\tLAST SEEN\tCURRENT")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", s.DeviceID, s.DeviceName, s.LastSeenAt.Format(time.RFC3339), s.Current)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke DEVICE_ID",
		Short: "Sign a device out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return c.RevokeDevice(cmd.Context(), args[0])
		},
	})
	return cmd
}
