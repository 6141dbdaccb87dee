package server

import (
	"context"
	"errors"
	"time"

	drepo "KlineStream/internal/domain/repository"
	"KlineStream/internal/handler/ws"
	"KlineStream/internal/usecase"
	xhttp "KlineStream/pkg/http"
	applogger "KlineStream/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	log        *applogger.Logger
	collector  *usecase.KlineCollector
	relay      *usecase.KlineRelay
	snapshots  *usecase.KlineSnapshots
	bus        drepo.Bus
	ws         *ws.KlineWSHandler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. snapshots may be nil.
func New(
	log *applogger.Logger,
	collector *usecase.KlineCollector,
	relay *usecase.KlineRelay,
	snapshots *usecase.KlineSnapshots,
	bus drepo.Bus,
	wsHandler *ws.KlineWSHandler,
	httpServer *xhttp.Server,
) *App {
	return &App{
		log:        log,
		collector:  collector,
		relay:      relay,
		snapshots:  snapshots,
		bus:        bus,
		ws:         wsHandler,
		httpServer: httpServer,
	}
}

// Run starts the application and blocks until ctx is cancelled or the
// collector stops on its own, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	// Start collector
	collectorDone := make(chan error, 1)
	go func() { collectorDone <- a.collector.Run(runCtx) }()
	a.log.Info("collector started")

	// Start snapshot consumer if configured
	var snapsDone chan struct{}
	if a.snapshots != nil {
		snapsDone = make(chan struct{})
		go func() {
			defer close(snapsDone)
			_ = a.snapshots.Run(runCtx)
		}()
	}

	// Wait for interrupt or for the tick source to end
	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-collectorDone:
		collectorDone = nil
		if runErr != nil {
			a.log.Error("collector stopped", applogger.Error(runErr))
		} else {
			a.log.Warn("tick source ended")
		}
	}
	cancel()

	return errors.Join(runErr, a.shutdown(collectorDone, snapsDone))
}

// shutdown stops producers before consumers: the collector first, then the
// relay's in-flight publishes, then sessions and HTTP, and the bus last.
func (a *App) shutdown(collectorDone <-chan error, snapsDone <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()
	a.log.Info("shutting down...")

	var errs []error
	// Stop collector (source + aggregator)
	if collectorDone != nil {
		select {
		case <-collectorDone:
		case <-ctx.Done():
			a.log.Warn("collector did not stop in time")
		}
	}

	// Drain in-flight publishes
	if err := a.relay.Close(ctx); err != nil {
		a.log.Warn("relay drain incomplete", applogger.Int("in_flight", a.relay.InFlight()), applogger.Error(err))
	}

	// Close subscriber sessions, then shutdown HTTP server
	a.ws.Close()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	// Stop snapshot consumer
	if snapsDone != nil {
		select {
		case <-snapsDone:
		case <-time.After(time.Second):
			a.log.Warn("snapshot consumer did not stop in time")
		}
	}

	// the log collector publishes through the bus producer
	a.log.RemoveCollector()
	if err := a.bus.Close(); err != nil {
		a.log.Warn("bus close error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
