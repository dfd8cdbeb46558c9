// Package server provides signal-driven graceful shutdown for the bloomd
// TCP/UDP listeners, adapted from an HTTP-specific graceful shutdown helper
// to the bloomd accept loops.
package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Shutdownable is anything that can be asked to stop accepting new work and
// drain in-flight requests within a deadline. *manager.Manager, the
// protocol package's TCP/UDP servers and cmd/bloomd's scheduler adapter
// implement this.
type Shutdownable interface {
	Shutdown(ctx context.Context) error
}

// ConfigReloadFunc is a function that reloads configuration on SIGHUP.
type ConfigReloadFunc func() error

// GracefulServer coordinates OS signal handling and orderly shutdown of one
// or more Shutdownable components (the TCP listener, the UDP listener, the
// Manager's background schedulers).
type GracefulServer struct {
	components     []Shutdownable
	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	configReloadFn ConfigReloadFunc
	configMu       sync.RWMutex
}

// NewGracefulServer creates a graceful shutdown coordinator for the given
// components, shut down in the order given.
func NewGracefulServer(components ...Shutdownable) *GracefulServer {
	return &GracefulServer{
		components: components,
		shutdownCh: make(chan struct{}),
	}
}

// Run installs signal handlers and blocks until a termination signal is
// received and shutdown completes (or the process exits on timeout).
func (gs *GracefulServer) Run(shutdownTimeout time.Duration) {
	gs.handleSignals(shutdownTimeout)
}

// Shutdown initiates a graceful shutdown of every component, in order.
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	var firstErr error
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log.Printf("Initiating graceful shutdown (timeout: %v)", timeout)

		for _, c := range gs.components {
			if err := c.Shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
				log.Printf("Error during shutdown: %v", err)
			}
		}

		if firstErr == nil {
			log.Printf("Server shutdown complete")
		}
	})
	return firstErr
}

// handleSignals listens for OS signals and triggers graceful shutdown or
// configuration reload.
func (gs *GracefulServer) handleSignals(shutdownTimeout time.Duration) {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // Termination signal (systemd, docker, k8s)
		syscall.SIGHUP,  // Reload configuration
	)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			log.Printf("Received %v signal, starting graceful shutdown...", sig)
			if err := gs.Shutdown(shutdownTimeout); err != nil {
				log.Printf("Shutdown error: %v", err)
				os.Exit(1)
			}
			os.Exit(0)

		case syscall.SIGHUP:
			log.Printf("Received SIGHUP signal, triggering configuration reload...")
			if err := gs.ReloadConfig(); err != nil {
				log.Printf("Configuration reload error: %v", err)
			}
		}
	}
}

// IsShuttingDown returns true if shutdown has been initiated.
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that closes when shutdown is initiated.
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// SetConfigReloadFunc sets the function to call when configuration reload
// is triggered. Config file parsing itself is out of scope;
// this only wires the signal to a caller-supplied hook.
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.configMu.Lock()
	defer gs.configMu.Unlock()
	gs.configReloadFn = fn
}

// ReloadConfig triggers a configuration reload.
func (gs *GracefulServer) ReloadConfig() error {
	gs.configMu.RLock()
	reloadFn := gs.configReloadFn
	gs.configMu.RUnlock()

	if reloadFn == nil {
		log.Printf("Configuration reload requested, but no reload function configured")
		return nil
	}

	log.Printf("Reloading configuration...")
	if err := reloadFn(); err != nil {
		log.Printf("Configuration reload failed: %v", err)
		return err
	}

	log.Printf("Configuration reload complete")
	return nil
}
