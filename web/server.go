package web

import (
	"log"

	"github.com/HillviewCap/ferrocodex-sub002/advisory"
	"github.com/HillviewCap/ferrocodex-sub002/db"
	"github.com/HillviewCap/ferrocodex-sub002/events"
	"github.com/HillviewCap/ferrocodex-sub002/queue"
	"github.com/HillviewCap/ferrocodex-sub002/storage"
	"github.com/HillviewCap/ferrocodex-sub002/web/service"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server exposes the firmware registry and analysis API.
type Server struct {
	app  *fiber.App
	port string

	health   *service.HealthService
	firmware *service.FirmwareService
	analysis *service.AnalysisService
	progress *service.ProgressService
}

// NewServer wires the HTTP layer onto its collaborators. Nothing here owns
// the database, store, queue or hub; the caller shuts those down after the
// server stops.
func NewServer(database *db.Database, store storage.FirmwareStore, q *queue.AnalysisQueue, hub *events.Hub, advisories *advisory.Client, port string) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: 256 * 1024 * 1024, // firmware images are large
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	server := &Server{
		app:      app,
		port:     port,
		health:   service.NewHealthService(database),
		firmware: service.NewFirmwareService(database, store),
		analysis: service.NewAnalysisService(database, q, advisories),
		progress: service.NewProgressService(hub),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	api.Get("/health", s.health.HandleHealthCheck)
	api.Get("/health/db", s.health.HandleAPIHealthDB)

	api.Post("/firmware", s.firmware.HandleAPIUploadFirmware)
	api.Get("/firmware", s.firmware.HandleAPIListFirmware)
	api.Get("/firmware/:id", s.firmware.HandleAPIGetFirmware)
	api.Delete("/firmware/:id", s.firmware.HandleAPIDeleteFirmware)

	api.Post("/firmware/:id/analyze", s.analysis.HandleAPIStartAnalysis)
	api.Get("/firmware/:id/analysis", s.analysis.HandleAPIGetAnalysis)
	api.Get("/analyses", s.analysis.HandleAPIListAnalyses)
	api.Get("/analysis/:id/advisories", s.analysis.HandleAPIGetAdvisories)

	s.app.Use("/ws", s.progress.HandleUpgrade)
	s.app.Get("/ws/progress", websocket.New(s.progress.HandleProgressSocket))
}

// Start starts the web server
func (s *Server) Start() error {
	log.Printf("Starting firmware analysis API on port %s", s.port)
	return s.app.Listen(":" + s.port)
}

// Stop gracefully stops the web server
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
