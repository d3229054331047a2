package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grovekeeper/intervention-uploader/internal/config"
	"github.com/grovekeeper/intervention-uploader/internal/core"
)

// stubClient accepts every submission.
type stubClient struct{}

func (stubClient) Submit(ctx context.Context, payload *core.SubmissionPayload) (*core.SubmissionResponse, error) {
	return &core.SubmissionResponse{ID: "ivn_1", HID: "HID1"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.API.BearerToken = "test-token"
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig(t)
	service := core.NewService(core.ServiceOptions{
		Run: core.RunConfig{
			Endpoint:     cfg.API.URL,
			BearerToken:  cfg.API.BearerToken,
			TenantKey:    cfg.API.TenantKey,
			PlantProject: cfg.API.PlantProject,
		},
		RequestDelay: time.Millisecond,
	})
	return NewServer(service, cfg)
}

// multipartUpload builds a form with the source table and any geometry files.
func multipartUpload(t *testing.T, table string, geometry map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if table != "" {
		fw, err := w.CreateFormFile("file", "entregas.csv")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(table))
	}
	for name, content := range geometry {
		fw, err := w.CreateFormFile("geometry", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

const fixtureTable = "REFORESTACION 2024\n" +
	"FOLIO No,NOMBRE DE LA REGION,FEHA DE ENTREGA,ESPECIE 1,CANTIDAD\n" +
	"PB001,Centro,3/15/2024,Pino,100\n" +
	"PB002,Norte,4/1/2024,Encino,200\n"

const pointGeoJSON = `{"type":"Point","coordinates":[-99.1,19.4]}`

func TestServer_LoadAndRecords(t *testing.T) {
	srv := newTestServer(t)

	body, contentType := multipartUpload(t, fixtureTable, map[string]string{
		"folio_PB001.geojson": pointGeoJSON,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/load", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/load = %d: %s", rec.Code, rec.Body)
	}

	var loadResp struct {
		Stats   core.Stats                 `json:"stats"`
		Records []*core.InterventionRecord `json:"records"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &loadResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loadResp.Stats.Total != 2 || loadResp.Stats.Ready != 1 {
		t.Errorf("stats = %+v", loadResp.Stats)
	}
	if len(loadResp.Records) != 2 {
		t.Errorf("records = %d, want 2", len(loadResp.Records))
	}

	// GET /api/stats agrees
	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/stats = %d", rec.Code)
	}
	var stats core.Stats
	json.Unmarshal(rec.Body.Bytes(), &stats)
	if stats.MissingGeoJSON != 1 {
		t.Errorf("MissingGeoJSON = %d, want 1", stats.MissingGeoJSON)
	}
}

func TestServer_PatchRecord(t *testing.T) {
	srv := newTestServer(t)
	loadTable(t, srv)

	patch := `{"plantDate":"5/10/2024"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/records/0", strings.NewReader(patch))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH = %d: %s", rec.Code, rec.Body)
	}
	var record core.InterventionRecord
	json.Unmarshal(rec.Body.Bytes(), &record)
	if record.PlantDate != "5/10/2024" || !record.Edited {
		t.Errorf("record = %+v", record)
	}

	// Unknown id maps to 404
	req = httptest.NewRequest(http.MethodPatch, "/api/records/99", strings.NewReader(patch))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("PATCH unknown id = %d, want 404", rec.Code)
	}
}

func TestServer_AttachAndDelete(t *testing.T) {
	srv := newTestServer(t)
	loadTable(t, srv)

	// Attach geometry to record 0
	req := httptest.NewRequest(http.MethodPost, "/api/records/0/geometry", strings.NewReader(pointGeoJSON))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("attach = %d: %s", rec.Code, rec.Body)
	}

	// Bad document maps to 400
	req = httptest.NewRequest(http.MethodPost, "/api/records/1/geometry", strings.NewReader("<gml/>"))
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad attach = %d, want 400", rec.Code)
	}

	// Delete everything still missing geometry (record 1)
	req = httptest.NewRequest(http.MethodPost, "/api/records/delete-missing-geometry", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete-missing-geometry = %d", rec.Code)
	}
	var resp struct {
		Deleted int        `json:"deleted"`
		Stats   core.Stats `json:"stats"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Deleted != 1 || resp.Stats.Total != 1 {
		t.Errorf("resp = %+v", resp)
	}

	// Nothing left to match: 404
	req = httptest.NewRequest(http.MethodPost, "/api/records/delete-missing-geometry", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestServer_RunLifecycle(t *testing.T) {
	cfg := testConfig(t)
	service := core.NewService(core.ServiceOptions{
		Run: core.RunConfig{
			Endpoint:     cfg.API.URL,
			BearerToken:  cfg.API.BearerToken,
			TenantKey:    cfg.API.TenantKey,
			PlantProject: cfg.API.PlantProject,
		},
		RequestDelay: time.Millisecond,
		NewClient:    func() core.SubmissionClient { return stubClient{} },
	})
	srv := NewServer(service, cfg)

	body, contentType := multipartUpload(t, fixtureTable, map[string]string{
		"folio_PB001.geojson": pointGeoJSON,
		"folio_PB002.geojson": pointGeoJSON,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/load", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("load = %d: %s", rec.Code, rec.Body)
	}

	// Start the run
	req = httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/runs = %d: %s", rec.Code, rec.Body)
	}
	var started map[string]string
	json.Unmarshal(rec.Body.Bytes(), &started)
	runID := started["run_id"]
	if runID == "" {
		t.Fatal("no run_id returned")
	}

	// Result blocks until the run completes
	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/result", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("result = %d: %s", rec.Code, rec.Body)
	}
	var resultResp struct {
		Result core.RunResult `json:"result"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resultResp)
	if resultResp.Result.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", resultResp.Result.SuccessCount)
	}

	// Archive downloads as zip
	req = httptest.NewRequest(http.MethodGet, "/api/runs/"+runID+"/archive", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Errorf("Content-Type = %q", got)
	}

	// Unknown run is a 404
	req = httptest.NewRequest(http.MethodGet, "/api/runs/nope/result", nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown run = %d, want 404", rec.Code)
	}
}

func TestServer_APIKeyAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"k1"}
	service := core.NewService(core.ServiceOptions{Run: core.RunConfig{}})
	srv := NewServer(service, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-API-Key", "k1")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key = %d, want 200", rec.Code)
	}
}

func loadTable(t *testing.T, srv *Server) {
	t.Helper()
	body, contentType := multipartUpload(t, fixtureTable, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/load", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("load fixture = %d: %s", rec.Code, rec.Body)
	}
}
