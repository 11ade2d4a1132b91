// Package server exposes the catalog and query execution over a small JSON API.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/logging"
	"github.com/kyleking/sqlnow/internal/results"
)

const shutdownTimeout = 10 * time.Second

// Backend is what the API serves
type Backend interface {
	Catalog() []catalog.TableDescriptor
	Sections() []string
	Table(name string) (catalog.TableDescriptor, error)
	RunQuery(ctx context.Context, query string, limit int) (*results.TableData, error)
	Stream(ctx context.Context, w io.Writer, query string, enc results.Encoding, limit int) error
}

// Server is the HTTP API
type Server struct {
	backend Backend
	cfg     config.ServerConfig
	router  *gin.Engine
}

// New creates the server and registers its routes
func New(backend Backend, cfg config.ServerConfig) *Server {
	if !logging.GetLogger().Enabled(logging.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost},
			AllowHeaders:  []string{"Content-Type"},
			ExposeHeaders: []string{"Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	}

	s := &Server{backend: backend, cfg: cfg, router: router}
	s.routes()

	return s
}

func (s *Server) routes() {
	h := &handlers{backend: s.backend}

	s.router.POST("/tables.json", h.tables)
	s.router.POST("/table.json", h.table)
	s.router.POST("/query.json", h.query)
	s.router.POST("/outputs", h.outputs)
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)

	go func() {
		logging.WithField("addr", s.cfg.Addr).Infof("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		logging.Infof("Shutting down")

		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs each request through the process logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger := logging.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"bytes":    c.Writer.Size(),
			"duration": time.Since(start),
		})

		if len(c.Errors) > 0 {
			logger.ErrorWithErr("Request failed", c.Errors.Last())
			return
		}

		logger.Debugf("Request")
	}
}
