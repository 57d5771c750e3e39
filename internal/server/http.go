package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/majidsafwaan2/gymguard/internal/config"
)

// HTTPServer wraps a gin.Engine with the service's timeout profile and
// graceful shutdown.
type HTTPServer struct {
	Engine *gin.Engine

	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

// NewHTTPServer builds the server from the loaded configuration. Auth
// exchanges are short; slow-read and slow-write clients are cut off by the
// configured timeouts rather than holding connections open.
func NewHTTPServer(cfg config.Config, router *gin.Engine) *HTTPServer {
	router.HandleMethodNotAllowed = true
	router.ForwardedByClientIP = true
	return &HTTPServer{
		Engine:          router,
		readTimeout:     cfg.HTTPReadTimeout,
		writeTimeout:    cfg.HTTPWriteTimeout,
		idleTimeout:     cfg.HTTPIdleTimeout,
		shutdownTimeout: cfg.HTTPShutdownTimeout,
	}
}

// Run starts the HTTP server on the provided addr and drains it when ctx is
// done, bounded by the shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Engine,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
