package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quantarch/medusa/core"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DASHBOARD - Read-only HTTP surface
// ═══════════════════════════════════════════════════════════════════════════════
//
// Serves the last published engine snapshot as JSON plus Prometheus
// metrics. Strictly read-only: there is no mutation endpoint here.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SnapshotSource is satisfied by the engine.
type SnapshotSource interface {
	Snapshot() core.Snapshot
}

// Server wraps the echo instance.
type Server struct {
	echo   *echo.Echo
	source SnapshotSource
	addr   string
}

// NewServer builds the HTTP server on the given listen address.
func NewServer(addr string, source SnapshotSource) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, source: source, addr: addr}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/api/snapshot", s.handleSnapshot)
	e.GET("/api/positions", s.handlePositions)
	e.GET("/api/risk", s.handleRisk)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("🌐 Dashboard listening")
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Dashboard server failed")
		}
	}()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	snap := s.source.Snapshot()
	status := http.StatusOK
	body := map[string]interface{}{
		"status":     "ok",
		"last_cycle": snap.At,
		"cycle":      snap.Cycle,
	}
	if snap.Halted {
		status = http.StatusServiceUnavailable
		body["status"] = "halted"
	} else if !snap.At.IsZero() && time.Since(snap.At) > 5*time.Minute {
		status = http.StatusServiceUnavailable
		body["status"] = "stale"
	}
	return c.JSON(status, body)
}

func (s *Server) handleSnapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.source.Snapshot())
}

func (s *Server) handlePositions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.source.Snapshot().Positions)
}

func (s *Server) handleRisk(c echo.Context) error {
	snap := s.source.Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"risk":        snap.Risk,
		"kill_switch": snap.KillSwitch,
		"halted":      snap.Halted,
	})
}
