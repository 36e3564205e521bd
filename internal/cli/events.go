package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/campus-presence/internal/application"
	"github.com/example/campus-presence/internal/backend"
)

var (
	signInEmail    string
	signInPassword string
	eventTitle     string
	eventType      string
	eventWhere     string
	eventStart     string
)

func init() {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming events",
		Run:   runEvents,
	}
	addSignInFlags(cmd)

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an event",
		Run:   runCreateEvent,
	}
	addSignInFlags(create)
	create.Flags().StringVar(&eventTitle, "title", "", "Event title")
	create.Flags().StringVar(&eventType, "type", "", "Event type")
	create.Flags().StringVar(&eventWhere, "where", "", "Location name")
	create.Flags().StringVar(&eventStart, "start", "", "Start time (RFC3339, default: now)")

	join := &cobra.Command{
		Use:   "join <id>",
		Short: "Join an event",
		Args:  cobra.ExactArgs(1),
		Run:   runJoinEvent,
	}
	addSignInFlags(join)

	cmd.AddCommand(create, join)
	RootCmd.AddCommand(cmd)
}

func addSignInFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&signInEmail, "email", "", "Sign in with this email before running")
	cmd.Flags().StringVar(&signInPassword, "password", "", "Password for --email")
}

// signInIfRequested signs in when --email is set and prints queued
// notifications on failure.
func signInIfRequested(cmd *cobra.Command, a *app) {
	if signInEmail == "" {
		return
	}
	if err := a.core.SignIn(cmd.Context(), signInEmail, signInPassword); err != nil {
		printNotifications(cmd, a)
		exitErr("sign in", err)
	}
}

func printNotifications(cmd *cobra.Command, a *app) {
	for _, n := range a.core.Snapshot().Notifications {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", n.Severity, n.Message)
	}
}

func runEvents(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()
	signInIfRequested(cmd, a)

	events, err := a.core.SyncEvents(cmd.Context())
	if err != nil {
		exitErr("sync events", err)
	}
	printResult(cmd.OutOrStdout(), events, func() string {
		if len(events) == 0 {
			return "no events"
		}
		var b strings.Builder
		for _, ev := range events {
			fmt.Fprintf(&b, "%s\t%s\t%s\t%s\t%d attending\n",
				ev.ID, ev.StartTime.Local().Format("Jan 2 15:04"), ev.Title, ev.LocationName, len(ev.Attendees))
		}
		return strings.TrimRight(b.String(), "\n")
	})
}

func runCreateEvent(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()
	signInIfRequested(cmd, a)

	draft := backend.EventDraft{Title: eventTitle, Type: eventType, LocationName: eventWhere}
	if eventStart != "" {
		start, err := time.Parse(time.RFC3339, eventStart)
		if err != nil {
			exitErr("parse --start", err)
		}
		draft.StartTime = start
	}
	finishIntent(cmd, a, "create event", a.core.CreateEvent(cmd.Context(), draft))
}

func runJoinEvent(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()
	signInIfRequested(cmd, a)

	if _, err := a.core.SyncEvents(cmd.Context()); err != nil {
		exitErr("sync events", err)
	}
	finishIntent(cmd, a, "join event", a.core.JoinEvent(cmd.Context(), args[0]))
}

// finishIntent prints the notifications an intent queued and exits on error.
func finishIntent(cmd *cobra.Command, a *app, what string, err error) {
	printNotifications(cmd, a)
	if err != nil {
		if application.ErrorKind(err) == "auth_required" {
			exitErr(what, fmt.Errorf("%w (use --email and --password)", err))
		}
		exitErr(what, err)
	}
}
