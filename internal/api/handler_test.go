package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"

	internalgrpc "github.com/mr1hm/go-hazard-mapper/internal/grpc"
	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/observability"
	"github.com/mr1hm/go-hazard-mapper/internal/osm"
	"github.com/mr1hm/go-hazard-mapper/internal/pipeline"
	"github.com/mr1hm/go-hazard-mapper/internal/repository"
)

// mockRepo implements repository.RunRepository for testing
type mockRepo struct {
	runs []models.RunSummary
}

func (m *mockRepo) Add(ctx context.Context, r *models.RunSummary) error {
	m.runs = append(m.runs, *r)
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*models.RunSummary, error) {
	for _, r := range m.runs {
		if r.RunID == id {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) Exists(ctx context.Context, id string) (bool, error) {
	for _, r := range m.runs {
		if r.RunID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListRuns(ctx context.Context, opts repository.Filter) ([]models.RunSummary, error) {
	results := m.runs

	// Apply severity filter
	if opts.MinSeverity != nil {
		var filtered []models.RunSummary
		for _, r := range results {
			if r.MaxSeverity >= *opts.MinSeverity {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	// Apply limit
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	return results, nil
}

type stubSource struct {
	resources []models.PointResource
}

func (s *stubSource) FetchResources(_ context.Context, _ osm.Query) ([]models.PointResource, error) {
	return s.resources, nil
}

type countingRefresher struct {
	calls int
}

func (r *countingRefresher) Trigger() { r.calls++ }

func point(id, category string, lat, lon float64) models.PointResource {
	return models.PointResource{ID: id, Category: category, Location: &models.Coordinate{Lat: lat, Lon: lon}}
}

func testResources() []models.PointResource {
	named := point("node/4", "waste_basket", 28.228, 83.991)
	named.Attributes = map[string]string{"name": "Lakeside Bin"}
	return []models.PointResource{
		point("node/1", "waste_basket", 28.2285, 83.9915), // flood
		point("node/2", "recycling", 28.243, 83.954),      // landslide
		point("node/3", "waste_basket", 28.20, 84.04),     // outside both
		named,                                             // flood
	}
}

func testSeeds() []models.HazardSeed {
	return []models.HazardSeed{
		{ID: "flood-seti", Type: models.HazardTypeFlood, Severity: models.SeverityHigh, Center: models.Coordinate{Lat: 28.228, Lon: 83.991}, RadiusMeters: 1200},
		{ID: "landslide-sarangkot", Type: models.HazardTypeLandslide, Severity: models.SeverityMedium, Center: models.Coordinate{Lat: 28.243, Lon: 83.954}, RadiusMeters: 1000},
	}
}

func newTestPipeline() *pipeline.Pipeline {
	cfg := pipeline.Config{
		AreaName: "Pokhara, Nepal",
		Query: osm.Query{
			Area: models.BBox{South: 28.15, West: 83.93, North: 28.28, East: 84.05},
			Tags: osm.DefaultTags(),
		},
		Seeds: testSeeds(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC))
	return pipeline.New(cfg, &stubSource{resources: testResources()}, clock, logger, observability.NewUnregisteredMetrics())
}

type testEnv struct {
	router      *gin.Engine
	pipeline    *pipeline.Pipeline
	repo        *mockRepo
	broadcaster *internalgrpc.Broadcaster
	refresher   *countingRefresher
}

func setupTestRouter(t *testing.T, run bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		pipeline:    newTestPipeline(),
		repo:        &mockRepo{},
		broadcaster: internalgrpc.NewBroadcaster(nil),
		refresher:   &countingRefresher{},
	}
	t.Cleanup(env.broadcaster.Close)

	if run {
		if _, err := env.pipeline.Run(context.Background()); err != nil {
			t.Fatalf("pipeline run: %v", err)
		}
	}

	env.router = gin.New()
	NewHandler(env.pipeline, env.repo, env.broadcaster, env.refresher).RegisterRoutes(env.router)
	return env
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	return w
}

func decodeFeatures(t *testing.T, w *httptest.ResponseRecorder) *geojson.FeatureCollection {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}
	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	if err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return fc
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t, false)

	w := env.do("GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestReadyz(t *testing.T) {
	env := setupTestRouter(t, false)
	if w := env.do("GET", "/readyz", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before first run, got %d", w.Code)
	}

	if _, err := env.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("pipeline run: %v", err)
	}
	if w := env.do("GET", "/readyz", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 after first run, got %d", w.Code)
	}
}

func TestReadEndpoints_BeforeFirstRun(t *testing.T) {
	env := setupTestRouter(t, false)

	for _, path := range []string{"/api/resources", "/api/zones", "/api/vulnerabilities", "/api/summary"} {
		if w := env.do("GET", path, nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, w.Code)
		}
	}
}

func TestGetResources(t *testing.T) {
	env := setupTestRouter(t, true)

	fc := decodeFeatures(t, env.do("GET", "/api/resources", nil))
	if len(fc.Features) != 4 {
		t.Fatalf("expected 4 resources, got %d", len(fc.Features))
	}

	atRisk := 0
	for _, f := range fc.Features {
		if f.Properties["at_risk"] == true {
			atRisk++
		}
	}
	if atRisk != 3 {
		t.Errorf("expected 3 resources at risk, got %d", atRisk)
	}
}

func TestGetResources_CategoryFilter(t *testing.T) {
	env := setupTestRouter(t, true)

	fc := decodeFeatures(t, env.do("GET", "/api/resources?category=recycling", nil))
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 recycling point, got %d", len(fc.Features))
	}
	if id := fc.Features[0].Properties["id"]; id != "node/2" {
		t.Errorf("expected node/2, got %v", id)
	}
}

func TestGetResources_RepeatedIDsFlaggedByPosition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	src := &stubSource{resources: []models.PointResource{
		point("node/5", "waste_basket", 28.228, 83.991), // flood
		point("node/5", "waste_basket", 28.20, 84.04),   // outside both
	}}
	p := pipeline.New(pipeline.Config{AreaName: "Pokhara, Nepal", Seeds: testSeeds()}, src,
		clockwork.NewFakeClock(), slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewUnregisteredMetrics())
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("pipeline run: %v", err)
	}

	router := gin.New()
	NewHandler(p, &mockRepo{}, nil, nil).RegisterRoutes(router)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/resources", nil)
	router.ServeHTTP(w, req)

	fc := decodeFeatures(t, w)
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(fc.Features))
	}
	if fc.Features[0].Properties["at_risk"] != true {
		t.Error("expected first node/5 to be at risk")
	}
	if fc.Features[1].Properties["at_risk"] != false {
		t.Error("expected second node/5 to be safe")
	}
}

func TestGetZones(t *testing.T) {
	env := setupTestRouter(t, true)

	fc := decodeFeatures(t, env.do("GET", "/api/zones", nil))
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(fc.Features))
	}

	flood := fc.Features[0]
	if flood.Geometry.GeoJSONType() != "Polygon" {
		t.Errorf("expected Polygon geometry, got %s", flood.Geometry.GeoJSONType())
	}
	if flood.Properties["label"] != "Flood Risk Zone" {
		t.Errorf("expected flood label, got %v", flood.Properties["label"])
	}
	if flood.Properties["color"] != "red" {
		t.Errorf("expected red, got %v", flood.Properties["color"])
	}
	if fc.Features[1].Properties["color"] != "orange" {
		t.Errorf("expected orange landslide zone, got %v", fc.Features[1].Properties["color"])
	}
}

func TestGetVulnerabilities(t *testing.T) {
	env := setupTestRouter(t, true)

	fc := decodeFeatures(t, env.do("GET", "/api/vulnerabilities", nil))
	if len(fc.Features) != 3 {
		t.Fatalf("expected 3 records, got %d", len(fc.Features))
	}

	names := map[string]string{}
	for _, f := range fc.Features {
		names[f.Properties["resource_id"].(string)] = f.Properties["name"].(string)
	}
	if names["node/4"] != "Lakeside Bin" {
		t.Errorf("expected named resource, got %q", names["node/4"])
	}
	if names["node/1"] != "Unknown" {
		t.Errorf("expected Unknown for unnamed resource, got %q", names["node/1"])
	}
	if _, ok := names["node/3"]; ok {
		t.Error("resource outside all zones should not be reported")
	}
}

func TestGetVulnerabilities_Filters(t *testing.T) {
	env := setupTestRouter(t, true)

	tests := []struct {
		query string
		want  int
	}{
		{"?min_severity=high", 2},
		{"?min_severity=medium", 3},
		{"?type=landslide", 1},
		{"?type=flood&min_severity=high", 2},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			fc := decodeFeatures(t, env.do("GET", "/api/vulnerabilities"+tt.query, nil))
			if len(fc.Features) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(fc.Features))
			}
		})
	}
}

func TestGetVulnerabilities_BadFilter(t *testing.T) {
	env := setupTestRouter(t, true)

	for _, q := range []string{"?min_severity=extreme", "?type=tsunami"} {
		if w := env.do("GET", "/api/vulnerabilities"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestGetSummary(t *testing.T) {
	env := setupTestRouter(t, true)

	w := env.do("GET", "/api/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		RunID   string         `json:"run_id"`
		Area    string         `json:"area"`
		Summary models.Summary `json:"summary"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if resp.RunID != env.pipeline.Latest().RunID {
		t.Errorf("expected run %s, got %s", env.pipeline.Latest().RunID, resp.RunID)
	}
	if resp.Area != "Pokhara, Nepal" {
		t.Errorf("expected area Pokhara, Nepal, got %s", resp.Area)
	}
	if resp.Summary.ResourcesAtRisk != 3 {
		t.Errorf("expected 3 at risk, got %d", resp.Summary.ResourcesAtRisk)
	}
	if resp.Summary.MaxSeverity != models.SeverityHigh {
		t.Errorf("expected max severity high, got %s", resp.Summary.MaxSeverity)
	}
}

func TestGetRuns(t *testing.T) {
	env := setupTestRouter(t, false)
	env.repo.runs = []models.RunSummary{
		{RunID: "r1", MaxSeverity: models.SeverityHigh},
		{RunID: "r2", MaxSeverity: models.SeverityLow},
		{RunID: "r3", MaxSeverity: models.SeverityMedium},
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?limit=2", 2},
		{"?limit=0", 3},
		{"?min_severity=medium", 2},
	}

	for _, tt := range tests {
		t.Run("runs"+tt.query, func(t *testing.T) {
			w := env.do("GET", "/api/runs"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			var resp struct {
				Runs []models.RunSummary `json:"runs"`
			}
			json.Unmarshal(w.Body.Bytes(), &resp)
			if len(resp.Runs) != tt.want {
				t.Errorf("expected %d runs, got %d", tt.want, len(resp.Runs))
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	env := setupTestRouter(t, false)

	body, _ := json.Marshal(analyzeRequest{Resources: testResources()})
	w := env.do("POST", "/api/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Summary models.Summary               `json:"summary"`
		Records []models.VulnerabilityRecord `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Records) != 3 {
		t.Errorf("expected 3 records, got %d", len(resp.Records))
	}
	if resp.Summary.TotalZones != 2 {
		t.Errorf("expected configured seeds to be used, got %d zones", resp.Summary.TotalZones)
	}

	// Ad-hoc analysis does not become the served report.
	if env.pipeline.Latest() != nil {
		t.Error("analyze should not replace the latest report")
	}
}

func TestAnalyze_CustomSeeds(t *testing.T) {
	env := setupTestRouter(t, false)

	body := []byte(`{
		"resources": [{"id": "node/9", "category": "waste_basket", "location": {"lat": 28.21, "lon": 83.98}}],
		"seeds": [{"id": "f1", "type": "flood", "severity": "moderate", "center": {"lat": 28.21, "lon": 83.98}, "radius_m": 50}]
	}`)
	w := env.do("POST", "/api/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Summary models.Summary `json:"summary"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Summary.TotalZones != 1 || resp.Summary.ResourcesAtRisk != 1 {
		t.Errorf("expected 1 zone and 1 at-risk resource, got %+v", resp.Summary)
	}
	if resp.Summary.MaxSeverity != models.SeverityMedium {
		t.Errorf("expected medium, got %s", resp.Summary.MaxSeverity)
	}
}

func TestAnalyze_ResourcesWithoutIDs(t *testing.T) {
	env := setupTestRouter(t, false)

	body := []byte(`{
		"resources": [
			{"category": "waste_basket", "location": {"lat": 28.228, "lon": 83.991}},
			{"category": "waste_basket", "location": {"lat": 28.228, "lon": 83.991}},
			{"category": "recycling"}
		]
	}`)
	w := env.do("POST", "/api/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Summary models.Summary `json:"summary"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Summary.TotalResources != 2 {
		t.Errorf("expected 2 located resources, got %d", resp.Summary.TotalResources)
	}
	if resp.Summary.ResourcesAtRisk != 2 {
		t.Errorf("expected 2 resources at risk, got %d", resp.Summary.ResourcesAtRisk)
	}
	if resp.Summary.AtRiskPercent != 100 {
		t.Errorf("expected 100%% at risk, got %v", resp.Summary.AtRiskPercent)
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"resources": [`, http.StatusBadRequest},
		{"unknown severity", `{"seeds": [{"type": "flood", "severity": "extreme", "center": {"lat": 28.2, "lon": 83.9}, "radius_m": 100}]}`, http.StatusBadRequest},
		{"latitude out of range", `{"resources": [{"id": "node/1", "location": {"lat": 95, "lon": 83.9}}]}`, http.StatusUnprocessableEntity},
		{"unknown hazard type", `{"seeds": [{"type": "tsunami", "severity": "high", "center": {"lat": 28.2, "lon": 83.9}, "radius_m": 100}]}`, http.StatusUnprocessableEntity},
		{"zero radius", `{"seeds": [{"type": "flood", "severity": "high", "center": {"lat": 28.2, "lon": 83.9}, "radius_m": 0}]}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(t, false)
			w := env.do("POST", "/api/analyze", []byte(tt.body))
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	env := setupTestRouter(t, false)

	w := env.do("POST", "/api/refresh", nil)
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", w.Code)
	}
	if env.refresher.calls != 1 {
		t.Errorf("expected 1 trigger, got %d", env.refresher.calls)
	}
}

func TestStream(t *testing.T) {
	env := setupTestRouter(t, false)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected text/event-stream, got %s", ct)
	}

	report, err := env.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline run: %v", err)
	}
	env.broadcaster.Broadcast(report)

	reader := bufio.NewReader(resp.Body)
	var event string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(name)
			continue
		}
		if data, ok := strings.CutPrefix(line, "data:"); ok && event == "report" {
			var payload struct {
				RunID string `json:"run_id"`
			}
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &payload); err != nil {
				t.Fatalf("decoding event: %v", err)
			}
			if payload.RunID != report.RunID {
				t.Errorf("expected run %s, got %s", report.RunID, payload.RunID)
			}
			return
		}
	}
}
