package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/batchscribe/batchscribe/internal/version"
)

// Server exposes run history over a read-only HTTP API.
type Server struct {
	history *HistoryDB
	engine  *gin.Engine
}

// NewServer wires the API routes onto a gin engine.
func NewServer(history *HistoryDB) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{history: history, engine: engine}

	engine.GET("/healthz", s.handleHealth)
	api := engine.Group("/api")
	{
		api.GET("/runs", s.handleRuns)
		api.GET("/runs/:id/files", s.handleRunFiles)
		api.GET("/stats", s.handleStats)
	}

	return s
}

// Run blocks serving HTTP on the given port.
func (s *Server) Run(port int) error {
	return s.engine.Run(fmt.Sprintf(":%d", port))
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
}

func (s *Server) handleRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	runs, total, err := s.history.GetRuns(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":   runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleRunFiles(c *gin.Context) {
	files, err := s.history.GetRunFiles(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *Server) handleStats(c *gin.Context) {
	runs, files, failed, err := s.history.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runs":         runs,
		"files":        files,
		"failed_files": failed,
	})
}
