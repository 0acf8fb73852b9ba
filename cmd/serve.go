package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"dandi-api/handlers"
	"dandi-api/locker"
	"dandi-api/services"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().String("port", "", "listen port")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.cfg.Mode == "production" || rt.cfg.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	locks, closeLocks, err := openLocker(ctx, rt)
	if err != nil {
		return err
	}
	defer closeLocks()

	container := services.NewContainer(rt.db, rt.cfg, locks, time.Now, rt.log)
	router := handlers.NewRouter(handlers.RouterConfig{
		Services:  container,
		JWTSecret: rt.cfg.JWT.Secret,
		Log:       rt.log,
	})

	srv := &http.Server{
		Addr:              ":" + rt.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info("server starting", "port", rt.cfg.Port, "mode", rt.cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openLocker returns the redis lock when REDIS_URL is set so that publishes
// are serialized across replicas, and an in-process lock otherwise.
func openLocker(ctx context.Context, rt *app) (locker.Locker, func(), error) {
	if rt.cfg.RedisURL == "" {
		rt.log.Warn("REDIS_URL not set, publish lock is local to this process")
		return locker.NewLocal(), func() {}, nil
	}
	r, err := locker.OpenRedis(ctx, rt.log, rt.cfg.RedisURL, rt.cfg.Publish.LockTTL)
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}
