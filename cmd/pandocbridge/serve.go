package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	bridge "github.com/SaveTheRbtz/pandoc-bridge-go"
	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

var (
	flagListen          string
	flagBodyLimit       int
	flagShutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve conversions over HTTP",
	Long: `Serve exposes the engine over HTTP.

  POST /convert?from=X&to=Y&settings=S   converts the request body
  GET  /metrics                          Prometheus metrics

Bodies sent with "Content-Encoding: zstd" are decompressed first.  A document the
engine rejects is answered with 422 and the engine's message.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagListen, "listen", ":8080", "listen address")
	serveCmd.Flags().IntVar(&flagBodyLimit, "body-limit", 32<<20, "maximum request body size in bytes")
	serveCmd.Flags().DurationVar(&flagShutdownTimeout, "shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	engine, err := openEngine(flagEngine, flagCapacity, logger)
	if err != nil {
		return err
	}
	lease, err := bridge.Acquire(engine)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, lease.Release())
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := newServer(engine, flagCapacity, logger, reg)
	if err != nil {
		return err
	}
	defer srv.close()
	app := srv.app(flagBodyLimit)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(flagListen)
	}()
	logger.Info("listening", zap.String("addr", flagListen), zap.String("engine", flagEngine))

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(flagShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

type server struct {
	engine   env.Engine
	capacity int
	logger   *zap.Logger

	reg     *prometheus.Registry
	metrics *metrics
	dec     *zstd.Decoder
}

func newServer(engine env.Engine, capacity int, logger *zap.Logger, reg *prometheus.Registry) (*server, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decompressor: %w", err)
	}
	return &server{
		engine:   engine,
		capacity: capacity,
		logger:   logger,
		reg:      reg,
		metrics:  newMetrics(reg),
		dec:      dec,
	}, nil
}

func (s *server) close() {
	s.dec.Close()
}

func (s *server) app(bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "pandocbridge",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Post("/convert", s.handleConvert)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))
	return app
}

// queryOptions maps the request's query parameters to conversion options.
// A parameter that is present but empty is passed as an empty string.
func queryOptions(c *fiber.Ctx) []bridge.ConvertOption {
	var opts []bridge.ConvertOption
	args := c.Context().QueryArgs()
	for _, p := range []struct {
		key string
		opt func(string) bridge.ConvertOption
	}{
		{"from", bridge.WithFrom},
		{"to", bridge.WithTo},
		{"settings", bridge.WithSettings},
	} {
		if args.Has(p.key) {
			opts = append(opts, p.opt(c.Query(p.key)))
		}
	}
	return opts
}

func (s *server) handleConvert(c *fiber.Ctx) error {
	// The raw body, zstd is decoded here rather than by fiber.
	body := c.Request().Body()
	if strings.EqualFold(c.Get(fiber.HeaderContentEncoding), "zstd") {
		decoded, err := s.dec.DecodeAll(body, nil)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid zstd body: %v", err))
		}
		body = decoded
	}

	session, err := bridge.NewSession(s.engine, bridge.WithCapacity(s.capacity), bridge.WithLogger(s.logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Error("failed to close session", zap.Error(err))
		}
	}()

	var out strings.Builder
	var stats bridge.Stats
	opts := append(queryOptions(c), bridge.WithStats(&stats))
	err = session.Convert(c.UserContext(), bufio.NewReader(bytes.NewReader(body)), &out, opts...)
	s.metrics.observe(&stats, err)

	var convErr *bridge.ConversionError
	switch {
	case errors.As(err, &convErr):
		return c.Status(fiber.StatusUnprocessableEntity).SendString(convErr.Message)
	case err != nil:
		s.logger.Error("conversion failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(out.String())
}
