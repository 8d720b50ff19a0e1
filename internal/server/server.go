package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/httpx"
	"github.com/congo-pay/walletcore/internal/routes"
)

// Server wraps the Fiber application and the background request sweeper.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	services *routes.Services
	logger   *slog.Logger
	stop     context.CancelFunc
	done     chan struct{}
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(deps routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      deps.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: httpx.ErrorHandler(deps.Logger),
	})

	services, err := routes.Setup(app, deps)
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: deps.Cfg, services: services, logger: deps.Logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the request sweeper and then serves HTTP until shutdown.
func (s *Server) Listen() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.services.Requests.Run(ctx, s.cfg.RequestSweepInterval)
	}()
	s.logger.Info("listening", slog.String("addr", s.cfg.Address()))
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and waits for the sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if s.stop != nil {
		s.stop()
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}
	return err
}
