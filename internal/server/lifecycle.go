// Package server runs the bridge process: it starts long-running services,
// waits for SIGINT, SIGTERM or a failing service, then stops the services in
// reverse order and releases shared resources.
package server

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component such as the line acceptor or the world
// gRPC server.
type Service interface {
	// Start blocks until the service is stopped or fails.
	Start() error
	// Stop asks a running Start to return.
	Stop()
}

// FuncService adapts a start/stop function pair into the Service interface.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls the underlying start function.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls the underlying stop function.
func (f *FuncService) Stop() { f.StopFn() }

// Lifecycle starts services in order and stops them in reverse order.
// Closers run after every service has stopped, also in reverse order.
type Lifecycle struct {
	logger   *zap.Logger
	mu       sync.Mutex
	services []namedService
	closers  []namedCloser
}

type namedService struct {
	name    string
	service Service
}

type namedCloser struct {
	name  string
	close func() error
}

// NewLifecycle creates a new Lifecycle manager.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a named service.
//
// Precondition: name must be non-empty; svc must be non-nil.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// AddCloser registers a resource released after all services stop, such as a
// database pool or a gRPC client connection.
func (l *Lifecycle) AddCloser(name string, closeFn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, namedCloser{name: name, close: closeFn})
}

// Run starts all services and blocks until a termination signal, ctx
// cancellation, or the first service failure.
//
// Postcondition: All services are stopped and all closers have run. Returns
// the first service failure, or nil on signal or cancellation.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l.mu.Lock()
	services := append([]namedService(nil), l.services...)
	closers := append([]namedCloser(nil), l.closers...)
	l.mu.Unlock()

	errCh := make(chan error, len(services))
	var wg sync.WaitGroup
	for _, ns := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.logger.Info("starting service", zap.String("service", ns.name))
			svcStart := time.Now()
			if err := ns.service.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", ns.name),
					zap.Error(err),
					zap.Duration("uptime", time.Since(svcStart)),
				)
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
			}
		}()
	}

	l.logger.Info("all services started",
		zap.Int("count", len(services)),
		zap.Duration("startup", time.Since(start)),
	)

	var runErr error
	select {
	case err := <-errCh:
		runErr = err
		l.logger.Error("service error, shutting down", zap.Error(err))
	case <-ctx.Done():
		l.logger.Info("shutting down", zap.NamedError("cause", context.Cause(ctx)))
	}

	l.shutdown(services)
	wg.Wait()
	if err := l.release(closers); err != nil && runErr == nil {
		runErr = err
	}

	l.logger.Info("shutdown complete", zap.Duration("total_uptime", time.Since(start)))
	return runErr
}

// Release runs the registered closers in reverse order without starting any
// service. It is for setup failures that happen before Run.
func (l *Lifecycle) Release() error {
	l.mu.Lock()
	closers := append([]namedCloser(nil), l.closers...)
	l.mu.Unlock()
	return l.release(closers)
}

func (l *Lifecycle) shutdown(services []namedService) {
	shutdownStart := time.Now()
	for i := len(services) - 1; i >= 0; i-- {
		ns := services[i]
		svcStart := time.Now()
		l.logger.Info("stopping service", zap.String("service", ns.name))
		ns.service.Stop()
		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(svcStart)),
		)
	}
	l.logger.Info("all services stopped", zap.Duration("shutdown_elapsed", time.Since(shutdownStart)))
}

func (l *Lifecycle) release(closers []namedCloser) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		nc := closers[i]
		if err := nc.close(); err != nil {
			l.logger.Warn("closing resource", zap.String("resource", nc.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("closing %s: %w", nc.name, err))
		}
	}
	return errors.Join(errs...)
}
