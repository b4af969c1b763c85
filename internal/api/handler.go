package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mr1hm/go-hazard-mapper/internal/analysis"
	internalgrpc "github.com/mr1hm/go-hazard-mapper/internal/grpc"
	"github.com/mr1hm/go-hazard-mapper/internal/hazard"
	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/repository"
)

// ReportSource is the part of the pipeline the HTTP layer reads from.
type ReportSource interface {
	Latest() *models.Report
	Seeds() []models.HazardSeed
	Evaluate(resources []models.PointResource, seeds []models.HazardSeed) (*models.Report, error)
	CheckReadiness(ctx context.Context) error
}

type Refresher interface {
	Trigger()
}

type Handler struct {
	reports     ReportSource
	repo        repository.RunRepository
	broadcaster *internalgrpc.Broadcaster
	refresher   Refresher
}

func NewHandler(reports ReportSource, repo repository.RunRepository, broadcaster *internalgrpc.Broadcaster, refresher Refresher) *Handler {
	return &Handler{
		reports:     reports,
		repo:        repo,
		broadcaster: broadcaster,
		refresher:   refresher,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/readyz", h.readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/api/resources", h.getResources)
	r.GET("/api/zones", h.getZones)
	r.GET("/api/vulnerabilities", h.getVulnerabilities)
	r.GET("/api/summary", h.getSummary)
	r.GET("/api/runs", h.getRuns)
	r.GET("/api/stream", h.stream)
	r.POST("/api/analyze", h.analyze)
	r.POST("/api/refresh", h.refresh)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) readyz(c *gin.Context) {
	if err := h.reports.CheckReadiness(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// latest writes 503 and returns nil when no run has completed yet.
func (h *Handler) latest(c *gin.Context) *models.Report {
	report := h.reports.Latest()
	if report == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "no analysis available yet",
		})
		return nil
	}
	return report
}

func (h *Handler) getResources(c *gin.Context) {
	report := h.latest(c)
	if report == nil {
		return
	}

	atRisk := make([]bool, len(report.Resources))
	for _, rec := range report.Records {
		atRisk[rec.ResourceIndex] = true
	}

	resources := report.Resources
	if cat := c.Query("category"); cat != "" {
		resources = make([]models.PointResource, 0, len(report.Resources))
		flags := make([]bool, 0, len(report.Resources))
		for i, r := range report.Resources {
			if r.Category == cat {
				resources = append(resources, r)
				flags = append(flags, atRisk[i])
			}
		}
		atRisk = flags
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, ResourcesGeoJSON(resources, atRisk))
}

func (h *Handler) getZones(c *gin.Context) {
	report := h.latest(c)
	if report == nil {
		return
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, ZonesGeoJSON(report.Zones))
}

func (h *Handler) getVulnerabilities(c *gin.Context) {
	var minSeverity models.Severity
	if s := c.Query("min_severity"); s != "" {
		minSeverity = models.ParseSeverity(s)
		if minSeverity == models.SeverityUnspecified {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_severity: " + s})
			return
		}
	}

	var hazardType models.HazardType
	if t := c.Query("type"); t != "" {
		hazardType = models.ParseHazardType(t)
		if hazardType == models.HazardTypeUnknown {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type: " + t})
			return
		}
	}

	report := h.latest(c)
	if report == nil {
		return
	}

	records := make([]models.VulnerabilityRecord, 0, len(report.Records))
	for _, rec := range report.Records {
		if rec.Zone.Severity < minSeverity {
			continue
		}
		if hazardType != "" && rec.Zone.Type != hazardType {
			continue
		}
		records = append(records, rec)
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, RecordsGeoJSON(records))
}

func (h *Handler) getSummary(c *gin.Context) {
	report := h.latest(c)
	if report == nil {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       report.RunID,
		"area":         report.Area,
		"generated_at": report.GeneratedAt,
		"summary":      report.Summary,
	})
}

func (h *Handler) getRuns(c *gin.Context) {
	filter := repository.Filter{
		Limit: 20, // Default to 20 runs if limit param not supplied
	}

	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}
	if s := c.Query("since"); s != "" {
		if t, ok := parseSince(s); ok {
			filter.Since = &t
		}
	}
	if s := c.Query("min_severity"); s != "" {
		if sev := models.ParseSeverity(s); sev != models.SeverityUnspecified {
			filter.MinSeverity = &sev
		}
	}
	if a := c.Query("area"); a != "" {
		filter.Area = a
	}

	runs, err := h.repo.ListRuns(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to fetch runs",
		})
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

type analyzeRequest struct {
	Resources []models.PointResource `json:"resources"`
	Seeds     []models.HazardSeed    `json:"seeds"`
}

// analyze runs the analysis over caller-supplied points. Seeds default to
// the service's configured seeds. The result is not stored.
func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	seeds := req.Seeds
	if len(seeds) == 0 {
		seeds = h.reports.Seeds()
	}

	report, err := h.reports.Evaluate(req.Resources, seeds)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, analysis.ErrInvalidGeometry) ||
			errors.Is(err, analysis.ErrCoordinateOutOfRange) ||
			errors.Is(err, hazard.ErrInvalidSeed) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":          report.RunID,
		"generated_at":    report.GeneratedAt,
		"summary":         report.Summary,
		"records":         report.Records,
		"vulnerabilities": RecordsGeoJSON(report.Records),
	})
}

func (h *Handler) refresh(c *gin.Context) {
	if h.refresher == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "refresh not available"})
		return
	}
	h.refresher.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh scheduled"})
}

// stream pushes a "report" event per completed run until the client goes
// away. The latest report, if any, is sent first.
func (h *Handler) stream(c *gin.Context) {
	if h.broadcaster == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "streaming not available"})
		return
	}

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	if report := h.reports.Latest(); report != nil {
		c.SSEvent("report", streamEvent(report))
	} else {
		c.SSEvent("waiting", gin.H{"status": "no analysis available yet"})
	}
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent("report", streamEvent(report))
			c.Writer.Flush()
		}
	}
}

func streamEvent(r *models.Report) gin.H {
	return gin.H{
		"run_id":       r.RunID,
		"area":         r.Area,
		"generated_at": r.GeneratedAt,
		"summary":      r.Summary,
	}
}

func parseSince(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
