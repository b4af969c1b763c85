package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/observability"
)

const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OverpassClient implements Source against the Overpass API.
type OverpassClient struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func NewOverpassClient(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *OverpassClient {
	return &OverpassClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		timeout:   timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

func (c *OverpassClient) FetchResources(ctx context.Context, q Query) ([]models.PointResource, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resources, err := c.fetch(ctx, q)
	c.metrics.FetchDuration.WithLabelValues("overpass").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("overpass", "error").Inc()
		return nil, err
	}
	c.metrics.FetchRequests.WithLabelValues("overpass", "success").Inc()
	return resources, nil
}

func (c *OverpassClient) fetch(ctx context.Context, q Query) ([]models.PointResource, error) {
	ql := BuildQuery(q, c.timeout)
	body := strings.NewReader(url.Values{"data": {ql}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug("overpass request", "url", c.baseURL, "query", ql)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("overpass API error: status %d: %s", resp.StatusCode, msg)
	}

	var data overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if data.Remark != "" {
		c.logger.Warn("overpass remark", "remark", data.Remark)
	}

	resources := make([]models.PointResource, 0, len(data.Elements))
	skipped := 0
	for _, el := range data.Elements {
		if el.Type != "node" || el.Lat == nil || el.Lon == nil {
			skipped++
			continue
		}
		key, category, ok := q.Tags.matchKey(el.Tags)
		if !ok {
			skipped++
			continue
		}
		resources = append(resources, toResource(el.ID, *el.Lat, *el.Lon, true, el.Tags, category, key))
	}

	c.logger.Info("fetched osm resources", "count", len(resources), "skipped", skipped, "area", q.Key())
	return resources, nil
}

// BuildQuery renders an Overpass QL union with one node statement per tag key.
func BuildQuery(q Query, timeout time.Duration) string {
	bbox := fmt.Sprintf("(%s,%s,%s,%s)",
		formatCoord(q.Area.South), formatCoord(q.Area.West),
		formatCoord(q.Area.North), formatCoord(q.Area.East))

	var b strings.Builder
	b.WriteString("[out:json]")
	if secs := int(math.Ceil(timeout.Seconds())); secs > 0 {
		fmt.Fprintf(&b, "[timeout:%d]", secs)
	}
	b.WriteString(";(")
	for _, k := range q.Tags.keys() {
		vals := q.Tags[k]
		if len(vals) == 0 {
			fmt.Fprintf(&b, `node["%s"]%s;`, escapeQL(k), bbox)
			continue
		}
		quoted := make([]string, 0, len(vals))
		for _, v := range vals {
			quoted = append(quoted, regexp.QuoteMeta(v))
		}
		fmt.Fprintf(&b, `node["%s"~"^(%s)$"]%s;`, escapeQL(k), escapeQL(strings.Join(quoted, "|")), bbox)
	}
	b.WriteString(");out body;")
	return b.String()
}

func escapeQL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

type overpassResponse struct {
	Remark   string            `json:"remark,omitempty"`
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  *float64          `json:"lat,omitempty"`
	Lon  *float64          `json:"lon,omitempty"`
	Tags map[string]string `json:"tags,omitempty"`
}
