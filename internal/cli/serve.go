package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/example/campus-presence/internal/http"
)

var servePort int

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the client core and serve it over HTTP",
		Run:   runServe,
	}
	cmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default: CAMPUS_HTTP_PORT)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := openApp(ctx)
	defer a.Close()

	if err := a.core.Start(ctx); err != nil {
		exitErr("start orchestrator", err)
	}

	port := a.cfg.HTTPPort
	if servePort > 0 {
		port = servePort
	}
	server := &http.Server{
		Addr: fmt.Sprintf(":%d", port),
		Handler: httptransport.NewRouter(httptransport.RouterConfig{
			Core:           a.core,
			Logger:         a.logger,
			AllowedOrigins: a.cfg.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("campus API listening", "addr", server.Addr, "backend", a.cfg.Backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Close()
		exitErr("serve", err)
	}
}
