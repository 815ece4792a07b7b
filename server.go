package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/stockflow_backend/appctx"
	"bitbucket.org/mmdatafocus/stockflow_backend/config"
	"bitbucket.org/mmdatafocus/stockflow_backend/export"
	"bitbucket.org/mmdatafocus/stockflow_backend/models"
	"bitbucket.org/mmdatafocus/stockflow_backend/models/reports"
	"bitbucket.org/mmdatafocus/stockflow_backend/store"
	"bitbucket.org/mmdatafocus/stockflow_backend/transport"
	"bitbucket.org/mmdatafocus/stockflow_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("stockflow-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

type app struct {
	downloader *transport.Downloader
	stores     map[models.TransactionKind]*store.CollectionStore
}

func newApp() *app {
	client := transport.NewProviderClient(strings.TrimRight(os.Getenv("PROVIDER_BASE_URL"), "/"))
	stores := map[models.TransactionKind]*store.CollectionStore{
		models.TransactionKindImport: store.New(),
		models.TransactionKindSale:   store.New(),
	}
	return &app{
		// The downloader re-fetches per request; the import store doubles as
		// its cache because imports carry the larger payloads.
		downloader: transport.NewDownloader(client, stores[models.TransactionKindImport]),
		stores:     stores,
	}
}

func (a *app) storeFor(kind models.TransactionKind) *store.CollectionStore {
	return a.stores[kind]
}

func parseKind(v string) (models.TransactionKind, error) {
	switch models.TransactionKind(v) {
	case models.TransactionKindImport:
		return models.TransactionKindImport, nil
	case models.TransactionKindSale:
		return models.TransactionKindSale, nil
	default:
		return "", fmt.Errorf("kind must be Import or Sale")
	}
}

func parseColumns(v string) []export.Column {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	cols := make([]export.Column, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cols = append(cols, export.Column(p))
		}
	}
	return cols
}

func exportRequestFromQuery(c *gin.Context) (export.Request, error) {
	kind, err := parseKind(c.Query("kind"))
	if err != nil {
		return export.Request{}, err
	}
	cols := parseColumns(c.Query("columns"))
	if len(cols) == 0 {
		cols = export.AllColumns
	}
	req := export.Request{
		Kind:            kind,
		Format:          export.Format(c.DefaultQuery("format", "xlsx")),
		Scope:           export.Scope(c.DefaultQuery("scope", "filtered")),
		FromDate:        c.Query("from"),
		ToDate:          c.Query("to"),
		SelectedColumns: cols,
		IncludeDetails:  !strings.EqualFold(c.DefaultQuery("includeDetails", "true"), "false"),
	}
	if err := req.Validate(); err != nil {
		return export.Request{}, err
	}
	return req, nil
}

// responseSink streams the artifact straight back to the caller as an
// attachment.
type responseSink struct {
	c *gin.Context
}

func (s responseSink) Save(ctx context.Context, artifact *export.Artifact) error {
	s.c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	s.c.Data(http.StatusOK, artifact.ContentType, artifact.Bytes)
	return nil
}

// deliverySink picks where combined-export artifacts land: the configured
// bucket when one exists, a local directory otherwise.
func deliverySink() export.Sink {
	if os.Getenv("GCS_BUCKET") != "" {
		return export.GCSSink{}
	}
	return export.FileSink{Dir: os.Getenv("EXPORT_DIR")}
}

func exportStatus(err error) int {
	switch utils.CategoryOf(err) {
	case utils.ErrorCategoryMissingData, utils.ErrorCategoryRemoteNotFound:
		return http.StatusNotFound
	case utils.ErrorCategoryRemoteValidation:
		return http.StatusBadRequest
	case utils.ErrorCategoryRemoteTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (a *app) exportDownloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "exportDownload")
		defer span.End()

		req, err := exportRequestFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  err.Error(),
				"fields": utils.ProcessValidationErrors(err),
			})
			return
		}
		result, err := a.downloader.RequestExport(ctx, req, responseSink{c: c})
		if err != nil {
			c.JSON(exportStatus(err), gin.H{
				"error":         err.Error(),
				"errorCategory": result.ErrorCategory,
			})
			return
		}
		// responseSink already wrote the body.
	}
}

type combinedExportRequest struct {
	Format         export.Format `json:"format" binding:"required"`
	Scope          export.Scope  `json:"scope"`
	FromDate       string        `json:"fromDate" binding:"required"`
	ToDate         string        `json:"toDate" binding:"required"`
	Columns        []string      `json:"columns"`
	IncludeDetails *bool         `json:"includeDetails"`
}

// combinedExportHandler produces the import artifact and the sales
// artifact for the same window, one after another.
func (a *app) combinedExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "combinedExport")
		defer span.End()

		var body combinedExportRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		cols := make([]export.Column, 0, len(body.Columns))
		for _, v := range body.Columns {
			cols = append(cols, export.Column(v))
		}
		if len(cols) == 0 {
			cols = export.AllColumns
		}
		includeDetails := utils.DereferencePtr(body.IncludeDetails, true)

		reqs := make([]export.Request, 0, 2)
		for _, kind := range []models.TransactionKind{models.TransactionKindImport, models.TransactionKindSale} {
			req := export.Request{
				Kind:            kind,
				Format:          body.Format,
				Scope:           body.Scope,
				FromDate:        body.FromDate,
				ToDate:          body.ToDate,
				SelectedColumns: cols,
				IncludeDetails:  includeDetails,
			}
			if err := req.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			reqs = append(reqs, req)
		}

		results, err := a.downloader.RequestCombinedExport(ctx, reqs, deliverySink())
		if err != nil {
			c.JSON(exportStatus(err), gin.H{"error": err.Error(), "results": results})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// loadRows fetches, canonicalizes and flattens one collection for the
// report and preview endpoints.
func (a *app) loadRows(ctx context.Context, kind models.TransactionKind, from, to time.Time, asOf time.Time) ([]models.CanonicalRow, []*models.TransactionRecord, error) {
	st := a.storeFor(kind)
	records, err := st.Get(ctx, func(fetchCtx context.Context) ([]*models.TransactionRecord, error) {
		fetchCtx, cancel := context.WithTimeout(fetchCtx, a.downloader.Client.FetchTimeout)
		defer cancel()
		payload, err := a.downloader.Client.FetchTransactions(fetchCtx, kind, from.Format("2006-01-02"), to.Format("2006-01-02"))
		if err != nil {
			return nil, err
		}
		recs, cerr := models.CanonicalizeAs(payload, kind)
		if cerr != nil {
			config.LogWarn(config.GetLogger(), "server.go", "loadRows",
				"some rows were skipped during canonicalization", cerr.Error())
		}
		return recs, nil
	})
	if err != nil {
		return nil, nil, err
	}

	filtered := make([]*models.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if rec.InDateRange(from, to) {
			filtered = append(filtered, rec)
		}
	}
	return models.Flatten(filtered, asOf), filtered, nil
}

// parseWindow reads the from/to query window, defaulting to the current
// month when neither bound is given.
func parseWindow(c *gin.Context) (time.Time, time.Time, error) {
	if c.Query("from") == "" && c.Query("to") == "" {
		from, to := utils.GetThisMonthRange()
		return from, to, nil
	}
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be a YYYY-MM-DD date")
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("to must be a YYYY-MM-DD date")
	}
	return from, to, nil
}

// summaryCacheKey is built from the resolved window bounds, not the raw
// query strings: default-window requests must not share a cache key across
// a month boundary.
func summaryCacheKey(kind models.TransactionKind, from, to time.Time, compare bool) string {
	return fmt.Sprintf("%s:%s:%s:%t", kind, from.Format("2006-01-02"), to.Format("2006-01-02"), compare)
}

func (a *app) summaryReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "summaryReport")
		defer span.End()

		kind, err := parseKind(c.Query("kind"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		from, to, err := parseWindow(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		asOf := time.Now()
		rows, records, err := a.loadRows(ctx, kind, from, to, asOf)
		if err != nil {
			c.JSON(exportStatus(err), gin.H{"error": err.Error()})
			return
		}

		compare := strings.EqualFold(c.Query("compare"), "true")
		key := summaryCacheKey(kind, from, to, compare)
		report := reports.CachedSummary(ctx, key, func() *reports.SummaryReport {
			if !compare {
				return reports.Aggregate(rows, records)
			}
			prevFrom, prevTo := utils.PreviousWindow(from, to)
			prevRows, _, err := a.loadRows(ctx, kind, prevFrom, prevTo, asOf)
			if err != nil {
				config.LogWarn(config.GetLogger(), "server.go", "summaryReportHandler",
					"previous window unavailable, skipping growth", err.Error())
				return reports.Aggregate(rows, records)
			}
			return reports.AggregateComparison(rows, prevRows, records)
		})
		c.JSON(http.StatusOK, report)
	}
}

func (a *app) transactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := parseKind(c.Query("kind"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		from, to, err := parseWindow(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Only the canonical statuses exist; "partial" in particular is a
		// legacy value callers must stop sending.
		status := c.Query("status")
		switch status {
		case "", string(models.TransactionStatusDraft), string(models.TransactionStatusCompleted), string(models.TransactionStatusExpired):
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("status %q is not supported; use Draft, Completed or Expired", status),
			})
			return
		}

		rows, _, err := a.loadRows(c.Request.Context(), kind, from, to, time.Now())
		if err != nil {
			c.JSON(exportStatus(err), gin.H{"error": err.Error()})
			return
		}
		if status != "" {
			kept := rows[:0]
			for _, row := range rows {
				if string(row.Status) == status {
					kept = append(kept, row)
				}
			}
			rows = kept
		}

		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		page, pageInfo, err := models.PaginateRows(rows, utils.NilIfEmpty(c.Query("cursor")), limit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": page, "pageInfo": pageInfo})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT_2")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	a := newApp()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := appctx.Set(c.Request.Context(), appctx.ContextKeyCorrelationId, cid)
		if biz := c.GetHeader("x-business-id"); biz != "" {
			ctx = appctx.Set(ctx, appctx.ContextKeyBusinessId, biz)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-business-id", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/api/transactions", a.transactionsHandler())
	r.GET("/api/reports/summary", a.summaryReportHandler())
	r.GET("/api/exports/download", a.exportDownloadHandler())
	r.POST("/api/exports/combined", a.combinedExportHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open. Both are optional: the
	// pipeline itself only needs the provider.
	if os.Getenv("DB_USER") != "" || os.Getenv("DSN") != "" {
		config.ConnectDatabaseWithRetry()
		if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
			models.MigrateTable()
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
	}
	if os.Getenv("REDIS_ADDRESS") != "" {
		config.ConnectRedisWithRetry()
	}

	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
