package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/clinical-intake/internal/bus"
	"github.com/tbourn/clinical-intake/internal/consumer"
	httpapi "github.com/tbourn/clinical-intake/internal/http"
	"github.com/tbourn/clinical-intake/internal/http/handlers"
)

const shutdownGrace = 15 * time.Second

// worker is a background loop that runs until its context is cancelled.
type worker func(ctx context.Context) error

// consume adapts a runner and its subscriber to a worker.
func consume(r *consumer.Runner, sub bus.Subscriber) worker {
	return func(ctx context.Context) error { return r.Run(ctx, sub) }
}

// purgeInbox periodically drops expired processed-event records.
func purgeInbox(inbox *consumer.DBInbox, a *app) worker {
	return func(ctx context.Context) error {
		inbox.PurgeEvery(ctx, time.Hour, a.log)
		return nil
	}
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// serve exposes h over HTTP and runs the workers until ctx is cancelled or
// one of them fails, then shuts everything down gracefully.
func serve(ctx context.Context, a *app, h *handlers.Handlers, workers ...worker) error {
	h.RequestTimeout = a.cfg.RequestTimeout

	r := gin.New()
	httpapi.RegisterRoutes(r, h, a.cfg, httpapi.Options{
		Stage: a.stage,
		Log:   a.log,
		Ready: a.ready,
	})

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		a.log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		a.log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	for _, w := range workers {
		w := w
		eg.Go(func() error {
			if err := w(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err := eg.Wait()

	cctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	a.close(cctx)

	if err != nil {
		a.log.Error().Err(err).Msg("stage stopped with error")
		return err
	}
	a.log.Info().Msg("stage stopped")
	return nil
}
