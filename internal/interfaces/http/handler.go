package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	appinterfaces "github.com/quanttradingfs/QuantFSA/internal/application/interfaces"
	"github.com/quanttradingfs/QuantFSA/internal/application/service/aggregation"
	"github.com/quanttradingfs/QuantFSA/internal/application/service/rebalance"
	"github.com/quanttradingfs/QuantFSA/internal/application/service/universe"
	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
	"github.com/quanttradingfs/QuantFSA/internal/domain/interfaces"
)

const (
	datasetsBasePath    = "/api/v1/datasets"
	aggregationBasePath = "/api/v1/aggregation"
	universeBasePath    = "/api/v1/universe"
	portfolioBasePath   = "/api/v1/portfolio"
)

var (
	errMissingName    = errors.New("missing artifact name")
	errMissingSymbols = errors.New("symbols query param required")
	errEmptyTarget    = errors.New("target allocation is empty")
)

type Handler struct {
	router      *gin.Engine
	aggregation *aggregation.Service
	universe    *universe.Service
	rebalance   *rebalance.Service
	store       interfaces.DatasetStore
	cache       *redis.Client
	cacheTTL    time.Duration
}

var _ appinterfaces.HTTPHandler = (*Handler)(nil)

func NewHandler(
	agg *aggregation.Service,
	uni *universe.Service,
	reb *rebalance.Service,
	store interfaces.DatasetStore,
	cache *redis.Client,
	cacheTTL time.Duration,
) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:      router,
		aggregation: agg,
		universe:    uni,
		rebalance:   reb,
		store:       store,
		cache:       cache,
		cacheTTL:    cacheTTL,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	datasets := h.router.Group(datasetsBasePath)
	if h.cache != nil {
		datasets.Use(h.cacheMiddleware())
	}
	{
		datasets.GET("/", h.listArtifacts)
		datasets.GET("/:name", h.getDataset)
	}

	agg := h.router.Group(aggregationBasePath)
	{
		agg.POST("/runs", h.runAggregation)
	}

	uni := h.router.Group(universeBasePath)
	{
		uni.GET("/", h.resolveUniverse)
	}

	pf := h.router.Group(portfolioBasePath)
	{
		pf.GET("/positions", h.getPositions)
		pf.GET("/performance", h.getPerformance)
		pf.POST("/plan", h.planRebalance)
		pf.POST("/rebalance", h.runRebalance)
	}
}

// Dataset handlers

func (h *Handler) listArtifacts(c *gin.Context) {
	artifacts, err := h.store.ListArtifacts(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if artifacts == nil {
		artifacts = []marketdata.ArtifactInfo{}
	}
	c.JSON(http.StatusOK, artifacts)
}

type datasetResponse struct {
	Name    string               `json:"name"`
	Year    int                  `json:"year"`
	Source  string               `json:"source"`
	Columns []string             `json:"columns"`
	Rows    []marketdata.WideRow `json:"rows"`
}

func (h *Handler) getDataset(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		writeError(c, http.StatusBadRequest, errMissingName)
		return
	}
	ds, err := h.store.LoadDataset(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, interfaces.ErrArtifactNotFound) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, datasetResponse{
		Name:    ds.Name(),
		Year:    ds.Year,
		Source:  ds.Source,
		Columns: ds.Columns(),
		Rows:    ds.Rows(),
	})
}

// Aggregation handlers

type aggregationRequest struct {
	StartYear int      `json:"start_year" binding:"required"`
	EndYear   int      `json:"end_year" binding:"required"`
	Symbols   []string `json:"symbols"`
	Source    string   `json:"source" binding:"required"`
	Restrict  bool     `json:"restrict"`
}

func (h *Handler) runAggregation(c *gin.Context) {
	var payload aggregationRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()
	symbols, err := h.universe.Resolve(ctx, payload.Symbols, payload.Restrict)
	if err != nil {
		var invalid *universe.InvalidUniverseError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   invalid.Error(),
				"symbols": invalid.Symbols,
			})
			return
		}
		writeError(c, http.StatusBadGateway, err)
		return
	}

	artifacts, err := h.aggregation.Aggregate(ctx, payload.StartYear, payload.EndYear, symbols, aggregation.Source(strings.ToLower(payload.Source)), payload.Restrict)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, aggregation.ErrUnknownSource) ||
			errors.Is(err, aggregation.ErrYearRange) ||
			errors.Is(err, aggregation.ErrNoSymbols) {
			status = http.StatusBadRequest
		}
		writeError(c, status, err)
		return
	}
	if artifacts == nil {
		artifacts = []string{}
	}
	c.JSON(http.StatusCreated, gin.H{"artifacts": artifacts})
}

// Universe handlers

func (h *Handler) resolveUniverse(c *gin.Context) {
	restrict, err := parseBoolQuery(c, "restrict", false)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	var symbols []string
	if raw := strings.TrimSpace(c.Query("symbols")); raw != "" {
		for _, symbol := range strings.Split(raw, ",") {
			symbol = strings.TrimSpace(symbol)
			if symbol != "" {
				symbols = append(symbols, symbol)
			}
		}
		if len(symbols) == 0 {
			writeError(c, http.StatusBadRequest, errMissingSymbols)
			return
		}
	}

	resolved, err := h.universe.Resolve(c.Request.Context(), symbols, restrict)
	if err != nil {
		var invalid *universe.InvalidUniverseError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   invalid.Error(),
				"symbols": invalid.Symbols,
			})
			return
		}
		if errors.Is(err, universe.ErrNoReferenceSource) {
			writeError(c, http.StatusBadRequest, err)
			return
		}
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": resolved})
}

// Portfolio handlers

func (h *Handler) getPositions(c *gin.Context) {
	positions, err := h.rebalance.Positions(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	if positions == nil {
		positions = []portfolio.Position{}
	}
	c.JSON(http.StatusOK, positions)
}

func (h *Handler) getPerformance(c *gin.Context) {
	ratio, err := h.rebalance.Performance(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"return": ratio})
}

type allocationEntry struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Quantity float64 `json:"quantity"`
}

// The payload is an ordered array, not an object: instruction order follows
// entry order.
func parseTarget(c *gin.Context) (*portfolio.TargetAllocation, error) {
	var entries []allocationEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errEmptyTarget
	}
	target := portfolio.NewTargetAllocation()
	for _, entry := range entries {
		target.Set(entry.Symbol, entry.Quantity)
	}
	return target, nil
}

func (h *Handler) planRebalance(c *gin.Context) {
	target, err := parseTarget(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	instructions, err := h.rebalance.Plan(c.Request.Context(), target)
	if err != nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	if instructions == nil {
		instructions = []portfolio.TradeInstruction{}
	}
	c.JSON(http.StatusOK, gin.H{"instructions": instructions})
}

// runRebalance responds 200 even when some orders failed: the report body
// carries per-instruction failures, matching the collect-and-continue
// dispatch semantics.
func (h *Handler) runRebalance(c *gin.Context) {
	target, err := parseTarget(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	report, err := h.rebalance.Rebalance(c.Request.Context(), target)
	if report == nil {
		writeError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Helpers

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseBoolQuery(c *gin.Context, key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s query param must be a boolean", key)
	}
	return parsed, nil
}

// cacheMiddleware caches GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
}
