package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"arena/config"
	"arena/dispatch"
	"arena/eventbus"
	"arena/logger"
	"arena/network"
	"arena/room"
	"arena/rtc"
	"arena/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid configuration")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		logger.Log.WithError(err).Fatal("server stopped with error")
	}
	logger.Log.Info("server stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "arena", cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Log.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	bus := eventbus.New()
	defer bus.Close()

	sessions := room.NewService(bus, room.Options{
		Tick:           cfg.Tick,
		NotifyInterval: cfg.NotifyInterval,
		Seed:           cfg.Seed,
	})
	defer sessions.Close()

	dispatcher, err := dispatch.NewArena(sessions)
	if err != nil {
		return err
	}

	negotiator := rtc.New(rtc.Deps{
		Factory:    rtc.NewPionFactory(cfg.STUNURLs, nil),
		Dispatcher: dispatcher,
		Snapshots:  sessions,
		Bus:        bus,
	}, rtc.Options{
		NegotiationTimeout:   cfg.NegotiationTimeout,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	})
	defer negotiator.Shutdown()

	hub := network.NewHub(negotiator, sessions, nil)
	negotiator.SetSignaler(hub)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.WithField("addr", cfg.HTTPAddr).Info("signaling listening (ws endpoint: /ws/signal)")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return negotiator.Janitor(ctx)
	})

	if cfg.UDPEnabled {
		udp, err := network.ListenUDP(cfg.UDPAddr, sessions, dispatcher, bus, network.UDPOptions{
			IdleTimeout:          cfg.UDPIdleTimeout,
			MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
			MaxPeers:             cfg.UDPMaxPeers,
		})
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			return udp.Serve(ctx)
		})
	}

	return g.Wait()
}
