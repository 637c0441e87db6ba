package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	e    *echo.Echo
	addr string
	log  zerolog.Logger
}

func New(cfg config.Config, logger zerolog.Logger, h Handlers) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	//順番: panic回復 → request id → ログ
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))

	RegisterRoutes(e, cfg, h)

	return &Server{e: e, addr: cfg.Addr(), log: logger}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

// ctxがキャンセルされるまで待ち受けて、終わったらgraceful shutdown
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("server started")
		if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.e.Shutdown(shutdownCtx)
}
