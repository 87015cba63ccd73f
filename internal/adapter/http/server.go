package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/pipeline"
	"github.com/couchcryptid/storm-vision-service/internal/render"
)

// Service is the analysis API the server exposes. *pipeline.Service
// implements it.
type Service interface {
	CheckReadiness(ctx context.Context) error
	Analyze(ctx context.Context, img domain.SourceImage, enhance bool) (domain.Snapshot, error)
	Latest() (domain.Snapshot, error)
	Track(hour float64) (pipeline.TrackState, error)
	Conditions(ctx context.Context) (domain.Conditions, error)
	RenderSVG(w io.Writer, opts render.Options) error
	RenderOverlayPNG(w io.Writer, opts render.Options, base bool) error
	RenderWindPNG(w io.Writer, width, height int) error
	RenderCard(w io.Writer) error
	RenderMap(ctx context.Context, req domain.MapRequest) ([]byte, error)
	ExportCSV(w io.Writer) error
}

// Server exposes the analysis API plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer     *http.Server
	svc            Service
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewServer creates an HTTP server with the /api/v1 routes, /healthz,
// /readyz, and /metrics.
func NewServer(addr string, svc Service, maxUploadBytes int64, logger *slog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: router,
			// Analyses wait on the AI service, so writes get a long deadline.
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}

	router.GET("/healthz", gin.WrapF(sharedobs.LivenessHandler()))
	router.GET("/readyz", gin.WrapF(sharedobs.ReadinessHandler(svc)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1/analyses")
	{
		api.POST("", s.handleAnalyze)
		api.GET("/latest", s.handleLatest)
		api.GET("/latest/image", s.handleImage)
		api.GET("/latest/enhanced", s.handleEnhanced)
		api.GET("/latest/track", s.handleTrack)
		api.GET("/latest/conditions", s.handleConditions)
		api.GET("/latest/overlay.svg", s.handleOverlaySVG)
		api.GET("/latest/overlay.png", s.handleOverlayPNG)
		api.GET("/latest/wind.png", s.handleWindPNG)
		api.GET("/latest/card.png", s.handleCard)
		api.GET("/latest/map.png", s.handleMap)
		api.GET("/latest/export.csv", s.handleExportCSV)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
