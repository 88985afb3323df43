package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"crypto-signal-service/internal/scanner"
	"crypto-signal-service/internal/store"
)

// ==================== STATUS API ====================

// Analyses is the read surface over the orchestrator and store
type Analyses interface {
	History(ctx context.Context, userID int64, symbol string, window time.Duration) ([]*store.AnalysisRecord, error)
	Summary(ctx context.Context, userID int64, symbol string, window time.Duration) (*store.LearningSummary, error)
}

// Records resolves individual analyses by id
type Records interface {
	GetByID(ctx context.Context, id string) (*store.AnalysisRecord, error)
}

// TrackerStatus exposes the tracker's live counters
type TrackerStatus interface {
	ActiveCount() int64
}

// ScannerStatus exposes the scanners' sweep counters
type ScannerStatus interface {
	Status() scanner.Status
}

// StreamStatus exposes per-timeframe subscription counts
type StreamStatus interface {
	Status() map[string]int
}

type Config struct {
	Addr string
}

// Server is a read-only observation surface. Analyses are triggered by
// collaborators through the command API, never through HTTP.
type Server struct {
	analyses Analyses
	records  Records
	tracker  TrackerStatus
	scanners ScannerStatus
	streams  StreamStatus
	log      zerolog.Logger
	http     *http.Server
}

func NewServer(cfg Config, analyses Analyses, records Records, tracker TrackerStatus, scanners ScannerStatus, streams StreamStatus, logger zerolog.Logger) *Server {
	s := &Server{
		analyses: analyses,
		records:  records,
		tracker:  tracker,
		scanners: scanners,
		streams:  streams,
		log:      logger.With().Str("component", "api").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/health", s.health)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/analyses", s.listAnalyses)
		v1.GET("/analyses/:id", s.getAnalysis)
		v1.GET("/summary", s.summary)
		v1.GET("/tracker/status", s.trackerStatus)
		v1.GET("/scanner/status", s.scannerStatus)
		v1.GET("/streams/status", s.streamStatus)
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it returns on listener failure only.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("api listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listAnalyses(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	window := parseWindow(c, 7*24*time.Hour)
	records, err := s.analyses.History(c.Request.Context(), userID, c.Query("symbol"), window)
	if err != nil {
		s.log.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": records, "count": len(records)})
}

func (s *Server) getAnalysis(c *gin.Context) {
	rec, err := s.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
			return
		}
		s.log.Error().Err(err).Msg("analysis lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) summary(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	window := parseWindow(c, 7*24*time.Hour)
	summary, err := s.analyses.Summary(c.Request.Context(), userID, symbol, window)
	if err != nil {
		s.log.Error().Err(err).Msg("summary query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary unavailable"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) trackerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": s.tracker.ActiveCount()})
}

func (s *Server) scannerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.scanners.Status())
}

func (s *Server) streamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscriptions": s.streams.Status()})
}

func parseUserID(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return 0, false
	}
	return userID, true
}

func parseWindow(c *gin.Context, fallback time.Duration) time.Duration {
	raw := c.Query("window")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
