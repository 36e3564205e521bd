package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/campus-presence/internal/backend/local"
)

var (
	seedEmail    string
	seedPassword string
	seedUsername string
)

func init() {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo locations and an optional demo account into the local store",
		Run:   runSeed,
	}
	cmd.Flags().StringVar(&seedEmail, "email", "", "Demo account email (skipped when empty)")
	cmd.Flags().StringVar(&seedPassword, "password", "", "Demo account password")
	cmd.Flags().StringVar(&seedUsername, "username", "demo", "Demo account username")

	RootCmd.AddCommand(cmd)
}

func runSeed(cmd *cobra.Command, args []string) {
	a := openApp(cmd.Context())
	defer a.Close()

	if a.local == nil {
		exitErr("seed", errors.New("seeding needs CAMPUS_BACKEND=local"))
	}
	result, err := a.local.Seed(cmd.Context(), local.DemoLocations, local.Registration{
		Username: seedUsername,
		FullName: seedUsername,
		Email:    seedEmail,
		Password: seedPassword,
	})
	if err != nil {
		exitErr("seed", err)
	}
	printResult(cmd.OutOrStdout(), result, func() string {
		if result.UserID == "" {
			return fmt.Sprintf("seeded %d locations", result.Locations)
		}
		return fmt.Sprintf("seeded %d locations, demo user %s (created: %t)", result.Locations, result.UserID, result.Created)
	})
}
