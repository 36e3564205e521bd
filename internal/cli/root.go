// Package cli implements the campus command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/campus-presence/internal/config"
	"github.com/example/campus-presence/internal/logging"
)

var (
	envFile    string
	formatFlag string
	tokenFlag  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "campus",
	Short: "Campus presence and activity client",
	Long:  "Runs the campus presence client core: check-ins, events, chat channels and notifications, served to a UI over HTTP.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file read before the environment")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Restore a previously issued access token")
}

func loadConfig() (config.Config, error) {
	if envFile == "" {
		return config.LoadFiles()
	}
	return config.LoadFiles(envFile)
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.New(cfg.LogLevel, w)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
