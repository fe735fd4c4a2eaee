package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fitcoach/internal/client/querycache"
	"fitcoach/internal/client/realtime"
	"fitcoach/internal/client/sdk"
)

func printWorkouts(out io.Writer, workouts []sdk.Workout) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTEMPLATE\tEXERCISES\tUPDATED")
	for _, wo := range workouts {
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", wo.ID, wo.Title, wo.IsTemplate, len(wo.Exercises), wo.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func printNotifications(out io.Writer, items []sdk.Notification) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tREAD\tCREATED")
	for _, n := range items {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", n.ID, n.Title, n.ReadAt != nil, n.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func newWorkoutsCmd(rt *runtime) *cobra.Command {
	var templates bool

	cmd := &cobra.Command{
		Use:   "workouts",
		Short: "List workouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			q := c.Workouts()
			if templates {
				q = c.WorkoutTemplates()
			}
			workouts, err := q.Get(cmd.Context())
			if err != nil {
				return err
			}
			return printWorkouts(cmd.OutOrStdout(), workouts)
		},
	}
	cmd.Flags().BoolVar(&templates, "templates", false, "List templates instead")

	var (
		title, description string
		template           bool
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workout",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			workout, err := c.CreateWorkout(cmd.Context(), sdk.WorkoutInput{
				Title:       title,
				Description: description,
				IsTemplate:  template,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), workout.ID)
			return nil
		},
	}
	createCmd.Flags().StringVarP(&title, "title", "t", "", "Workout title (required)")
	createCmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	createCmd.Flags().BoolVar(&template, "template", false, "Save as a template")
	_ = createCmd.MarkFlagRequired("title")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete WORKOUT_ID",
		Short: "Delete a workout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return c.DeleteWorkout(cmd.Context(), args[0])
		},
	})
	return cmd
}

func newNotificationsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			items, err := c.Notifications().Get(cmd.Context())
			if err != nil {
				return err
			}
			return printNotifications(cmd.OutOrStdout(), items)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "read NOTIFICATION_ID",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rt.authedClient(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			return c.MarkNotificationRead(cmd.Context(), args[0])
		},
	})
	return cmd
}

// newWatchCmd keeps workouts and notifications observed and reprints them
// whenever a realtime event invalidates them.
func newWatchCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print workouts and notifications as they change",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := rt.authedClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			stopStates := followStates(c.Realtime, func(state realtime.State, err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "realtime %s: %v\n", state, err)
					return
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "realtime %s\n", state)
			})
			defer stopStates()

			workoutsQ, notificationsQ := c.Workouts(), c.Notifications()
			workouts := workoutsQ.Observe()
			defer workouts.Close()
			notifications := notificationsQ.Observe()
			defer notifications.Close()

			for {
				select {
				case <-ctx.Done():
					return nil
				case snap, ok := <-workouts.Updates():
					if !ok {
						return fmt.Errorf("session ended")
					}
					if items, ok := workoutsQ.Value(snap); ok && !snap.Fetching {
						fmt.Fprintf(out, "== workouts (%d) ==\n", len(items))
						_ = printWorkouts(out, items)
					}
					reportErr(cmd, snap)
				case snap, ok := <-notifications.Updates():
					if !ok {
						return fmt.Errorf("session ended")
					}
					if items, ok := notificationsQ.Value(snap); ok && !snap.Fetching {
						fmt.Fprintf(out, "== notifications (%d) ==\n", len(items))
						_ = printNotifications(out, items)
					}
					reportErr(cmd, snap)
				}
			}
		},
	}
}

func reportErr(cmd *cobra.Command, snap querycache.Snapshot) {
	if snap.Err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "refresh %s: %v\n", snap.Key, snap.Err)
	}
}

// followStates reports state changes of whichever connection the manager
// currently holds.
func followStates(m *realtime.Manager, fn func(realtime.State, error)) (stop func()) {
	var detach func()
	unsubscribe := m.OnConnection(func(conn *realtime.Conn) {
		if detach != nil {
			detach()
			detach = nil
		}
		if conn != nil {
			detach = conn.OnStateChange(fn)
		}
	})
	return func() {
		unsubscribe()
		if detach != nil {
			detach()
		}
	}
}
