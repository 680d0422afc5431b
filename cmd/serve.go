package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dinescout/internal/api"
	"github.com/sells-group/dinescout/internal/chat"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the search and chat HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initSearch(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		gen, err := newGenerator(cfg.Chat)
		if err != nil {
			return err
		}

		var chatter api.Chatter
		if gen != nil {
			chatter = chat.New(env.Search, gen, env.Region, cfg.Chat.Neighborhoods,
				chat.WithTimeout(cfg.Chat.Timeout()),
				chat.WithMaxResults(cfg.Chat.MaxResults),
				chat.WithHistory(cfg.Chat.MaxHistory),
			)
		} else {
			zap.L().Warn("chat provider disabled, /api/v1/chat will answer 503")
		}

		handler := api.New(env.Search, chatter, env.Store, api.Config{
			CORSOrigins:    cfg.Server.CORSOrigins,
			ChatRateLimit:  cfg.Server.ChatRateLimit,
			ChatRateWindow: time.Duration(cfg.Server.ChatRateWindowSecs) * time.Second,
		}).Routes()

		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port))
	},
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler on port until ctx is done, then shuts down
// gracefully. No write timeout is set so chat streams are bounded by their own
// deadline.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
