package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/campus-presence/internal/application"
	"github.com/example/campus-presence/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "List check-in locations with their occupancy",
		Run:   runLocations,
	}

	checkIn := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Check in to or out of a location",
		Args:  cobra.ExactArgs(1),
		Run:   runToggleLocation,
	}
	addSignInFlags(checkIn)

	cmd.AddCommand(checkIn)
	RootCmd.AddCommand(cmd)
}

func runLocations(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()

	if err := a.core.RefreshLocations(cmd.Context()); err != nil {
		exitErr("list locations", err)
	}
	locations := a.core.Snapshot().Locations
	printResult(cmd.OutOrStdout(), locations, func() string {
		if len(locations) == 0 {
			return "no locations"
		}
		var b strings.Builder
		for _, loc := range locations {
			fmt.Fprintf(&b, "%s\t%s\t%d%% (%s)\n", loc.ID, loc.Name, loc.Occupancy, loc.Band())
		}
		return strings.TrimRight(b.String(), "\n")
	})
}

func runToggleLocation(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()
	signInIfRequested(cmd, a)

	if err := a.core.RefreshLocations(cmd.Context()); err != nil {
		exitErr("list locations", err)
	}
	loc, ok := findLocation(a.core.Snapshot(), args[0])
	if !ok {
		exitErr("toggle", fmt.Errorf("%w: location %s", application.ErrNotFound, args[0]))
	}
	finishIntent(cmd, a, "toggle check-in", a.core.ToggleCheckIn(cmd.Context(), loc))
}

func findLocation(snap application.Snapshot, id string) (model.Location, bool) {
	for _, loc := range snap.Locations {
		if loc.ID == id {
			return loc, true
		}
	}
	return model.Location{}, false
}
