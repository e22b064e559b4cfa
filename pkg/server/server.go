package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elonfeng/bestpick/internal/store"
	"github.com/elonfeng/bestpick/pkg/pick"
	"github.com/elonfeng/bestpick/pkg/score"
	"github.com/elonfeng/bestpick/pkg/source"
	"github.com/elonfeng/bestpick/pkg/tier"
)

// Server provides the HTTP API.
type Server struct {
	store  store.Store
	engine *pick.Engine
	tiers  *tier.Table
	port   int
	log    *slog.Logger
}

// New creates a new HTTP server. s may be nil, in which case history is
// neither recorded nor served.
func New(s store.Store, engine *pick.Engine, tiers *tier.Table, port int, logger *slog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  s,
		engine: engine,
		tiers:  tiers,
		port:   port,
		log:    logger,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.GET("/search", s.handleSearch)
	v1.POST("/score", s.handleScore)
	v1.POST("/top", s.handleTop)
	v1.GET("/tiers", s.handleTiers)
	v1.GET("/runs", s.handleRuns)
	v1.GET("/items", s.handleItems)
	v1.GET("/sources", s.handleSources)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing q"})
		return
	}

	hits, err := s.engine.Search(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	if s.store != nil {
		items := make([]source.Item, len(hits))
		for i, h := range hits {
			items[i] = h.Item
		}
		if err := s.store.UpsertItems(c.Request.Context(), q, items); err != nil {
			s.log.Warn("server: store items", "query", q, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"query": q,
		"data":  hits,
		"count": len(hits),
	})
}

type scoreRequest struct {
	Query   string             `json:"query"`
	Sources []score.SourceItem `json:"sources"`
}

func (s *Server) handleScore(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	payload := s.engine.ScoreItems(req.Query, req.Sources)
	s.saveRun(c.Request.Context(), &store.Run{
		Query:         req.Query,
		Kind:          store.KindAnalyze,
		BestPickScore: payload.BestPickScore,
		Confidence:    payload.Confidence,
	}, payload)
	c.JSON(http.StatusOK, payload)
}

type topRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleTop(c *gin.Context) {
	var req topRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	res, err := s.engine.Top(c.Request.Context(), req.Query)
	if err != nil {
		s.fail(c, err)
		return
	}

	var (
		best, conf int
		topPick    string
	)
	if len(res.Picks) > 0 {
		best, conf, topPick = res.Picks[0].Score, res.Picks[0].Confidence, res.Picks[0].Name
	}
	s.saveRun(c.Request.Context(), &store.Run{
		Query:         res.Query,
		Kind:          store.KindTop,
		BestPickScore: best,
		Confidence:    conf,
		TopPick:       topPick,
		Fallback:      res.Fallback,
	}, res)
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleTiers(c *gin.Context) {
	if domain := strings.TrimSpace(c.Query("domain")); domain != "" {
		tr, ok := s.tiers.Lookup(domain)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "domain not tiered", "domain": domain})
			return
		}
		c.JSON(http.StatusOK, gin.H{"domain": domain, "tier": tr})
		return
	}

	var (
		vertical string
		tiers    = []tier.Tier{}
	)
	if s.tiers != nil {
		vertical, tiers = s.tiers.Vertical(), s.tiers.Tiers()
	}
	c.JSON(http.StatusOK, gin.H{
		"vertical": vertical,
		"data":     tiers,
		"count":    len(tiers),
	})
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"data": []store.Run{}, "count": 0})
		return
	}
	runs, err := s.store.ListRuns(c.Request.Context(), store.RunListOpts{
		Query: c.Query("q"),
		Kind:  c.Query("kind"),
		Limit: intQuery(c, "limit", 50),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  nonNil(runs),
		"count": len(runs),
	})
}

func (s *Server) handleItems(c *gin.Context) {
	opts := store.ListOpts{
		Query:  c.Query("q"),
		Source: source.SourceType(c.Query("source")),
		Limit:  intQuery(c, "limit", 100),
	}
	if since := c.Query("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Since = t
		}
	}

	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"data": []store.Item{}, "count": 0})
		return
	}
	items, err := s.store.ListItems(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  nonNil(items),
		"count": len(items),
	})
}

func (s *Server) handleSources(c *gin.Context) {
	var counts map[source.SourceType]int
	if s.store != nil {
		var err error
		if counts, err = s.store.CountItemsBySource(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	type sourceInfo struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
		Items   int    `json:"items"`
	}

	enabled := make(map[source.SourceType]bool)
	for _, src := range s.engine.Searchers() {
		enabled[src.Name()] = true
	}
	infos := make([]sourceInfo, 0, len(source.AllSourceTypes()))
	for _, t := range source.AllSourceTypes() {
		infos = append(infos, sourceInfo{
			Name:    string(t),
			Enabled: enabled[t],
			Items:   counts[t],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  infos,
		"count": len(infos),
	})
}

// fail maps engine errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, pick.ErrEmptyQuery) {
		status = http.StatusBadRequest
	}
	s.log.Warn("server: request failed", "path", c.FullPath(), "error", err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) saveRun(ctx context.Context, run *store.Run, payload any) {
	if s.store == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("server: marshal run", "query", run.Query, "error", err)
		return
	}
	run.Payload = body
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.log.Warn("server: save run", "query", run.Query, "error", err)
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
