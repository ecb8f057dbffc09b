// Package server exposes the run-trigger surface the external scheduler
// calls, plus health and metrics endpoints.
package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/export"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/ledger"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/pipeline"
)

// Server wires the HTTP surface over the runner and export service.
type Server struct {
	app    *fiber.App
	runner *pipeline.Runner
	export *export.Service
	log    *slog.Logger
}

func New(runner *pipeline.Runner, exportSvc *export.Service, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:      "invoice-extractor",
		ErrorHandler: errorHandler(logger),
	})
	s := &Server{app: app, runner: runner, export: exportSvc, log: logger}

	app.Use(RequestID())
	app.Use(RequestLogger(logger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	app.Post("/v1/runs", s.handleRun)
	app.Get("/v1/costs/export", s.handleCostExport)

	return s
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleRun triggers one extraction cycle. The run executes synchronously;
// the scheduler owns the run timeout via request cancellation.
func (s *Server) handleRun(c *fiber.Ctx) error {
	var req pipeline.RunRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid run request: "+err.Error())
	}

	summary, err := s.runner.Run(c.UserContext(), req)
	if err != nil {
		s.log.Error("run failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   err.Error(),
			"summary": summary,
		})
	}
	return c.JSON(summary)
}

// handleCostExport streams the cost report workbook for an optional
// from/to window (RFC 3339 or YYYY-MM-DD).
func (s *Server) handleCostExport(c *fiber.Ctx) error {
	w := ledger.Window{}
	if v := c.Query("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid from: "+err.Error())
		}
		w.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid to: "+err.Error())
		}
		w.To = t
	}

	b, err := s.export.CostReportXLSX(w)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="cost-report.xlsx"`)
	return c.Send(b)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= 500 {
			log.Error("http.error", "path", c.Path(), "status", code, "error", err)
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
