package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/medgrid/scanflow/internal/api"
	"github.com/medgrid/scanflow/internal/api/middleware"
	"github.com/medgrid/scanflow/internal/config"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/repository"
	"github.com/medgrid/scanflow/internal/service"
)

type gateway struct {
	router       *gin.Engine
	orchestrator *service.Orchestrator
	repos        *repository.Repos
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver:          "sqlite",
		Path:            filepath.Join(t.TempDir(), "scanflow_test.db"),
		MaxIdleConns:    2,
		MaxOpenConns:    2,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
	db, err := repository.InitDB(&cfg)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	repos := repository.NewRepos(db)
	if err := repos.Modalities.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}

	cache := service.NewModalityCache(repos.Modalities, 16, time.Minute)
	orch := service.NewOrchestrator(db, cache, service.NewDispatcher(), nil, nil, config.QueueConfig{})
	router := api.SetupRouter(orch, "test", middleware.CORSConfig{AllowAllOrigins: true})
	return &gateway{router: router, orchestrator: orch, repos: repos}
}

func (g *gateway) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	g.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func (g *gateway) createJob(t *testing.T, req *service.CreateJobRequest) *domain.Job {
	t.Helper()
	job, err := g.orchestrator.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestHealthEndpoint(t *testing.T) {
	g := newGateway(t)
	w := g.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestCreateJobEndpoint(t *testing.T) {
	g := newGateway(t)

	w := g.do(t, http.MethodPost, "/jobs/", map[string]interface{}{
		"modality": "cbct",
		"priority": 4,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true {
		t.Error("success flag missing")
	}
	job := body["job"].(map[string]interface{})
	if job["status"] != "pending" {
		t.Errorf("status = %v, want pending", job["status"])
	}

	w = g.do(t, http.MethodPost, "/jobs/", map[string]interface{}{"modality": "mri"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown modality: status = %d, want 400", w.Code)
	}
	body = decode(t, w)
	if body["success"] != false {
		t.Error("error envelope must carry success=false")
	}
}

func TestListPendingEndpoint(t *testing.T) {
	g := newGateway(t)
	job := g.createJob(t, &service.CreateJobRequest{Modality: "cbct"})

	w := g.do(t, http.MethodGet, "/jobs/pending/cbct/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", body["count"])
	}
	jobs := body["jobs"].([]interface{})
	if jobs[0].(map[string]interface{})["id"] != job.ID {
		t.Error("listed job id mismatch")
	}

	w = g.do(t, http.MethodGet, "/jobs/pending/mri/", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown modality: status = %d, want 404", w.Code)
	}
}

func TestClaimEndpoint(t *testing.T) {
	g := newGateway(t)
	job := g.createJob(t, &service.CreateJobRequest{Modality: "audio"})

	w := g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/processing/", job.ID), map[string]string{"worker_id": "w1"})
	if w.Code != http.StatusOK {
		t.Fatalf("claim: status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "processing" {
		t.Errorf("status = %v, want processing", body["status"])
	}

	// Exclusivity: a second claim conflicts.
	w = g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/processing/", job.ID), map[string]string{"worker_id": "w2"})
	if w.Code != http.StatusConflict {
		t.Errorf("second claim: status = %d, want 409", w.Code)
	}

	w = g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/processing/", uuid.New().String()), map[string]string{"worker_id": "w1"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job: status = %d, want 404", w.Code)
	}

	w = g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/processing/", job.ID), map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing worker_id: status = %d, want 400", w.Code)
	}
}

func TestCompleteEndpoint(t *testing.T) {
	g := newGateway(t)
	job := g.createJob(t, &service.CreateJobRequest{Modality: "audio"})
	g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/processing/", job.ID), map[string]string{"worker_id": "w1"})

	w := g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/completed/", job.ID), map[string]interface{}{
		"output_files": map[string]string{},
		"logs":         "done",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "completed" {
		t.Errorf("status = %v, want completed", body["status"])
	}
	if body["completed_at"] == nil {
		t.Error("completed_at missing")
	}

	// Completing a terminal job is a validation error.
	w = g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/completed/", job.ID), map[string]interface{}{
		"output_files": map[string]string{},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("double complete: status = %d, want 400", w.Code)
	}
}

func TestFailEndpoint(t *testing.T) {
	g := newGateway(t)
	job := g.createJob(t, &service.CreateJobRequest{Modality: "audio"})
	g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/processing/", job.ID), map[string]string{"worker_id": "w1"})

	w := g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/failed/", job.ID), map[string]interface{}{
		"error_msg": "decoder crashed",
		"can_retry": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("fail: status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "retrying" {
		t.Errorf("status = %v, want retrying", body["status"])
	}
	if body["retry_count"].(float64) != 1 {
		t.Errorf("retry_count = %v, want 1", body["retry_count"])
	}

	w = g.do(t, http.MethodPost, fmt.Sprintf("/jobs/%s/failed/", job.ID), map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing error_msg: status = %d, want 400", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	g := newGateway(t)
	job := g.createJob(t, &service.CreateJobRequest{Modality: "ios", InputPath: "/incoming/scan.stl"})

	w := g.do(t, http.MethodGet, fmt.Sprintf("/jobs/%s/status/", job.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["id"] != job.ID || body["input_path"] != "/incoming/scan.stl" {
		t.Errorf("unexpected job payload: %v", body)
	}

	w = g.do(t, http.MethodGet, fmt.Sprintf("/jobs/%s/status/", uuid.New().String()), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown job: status = %d, want 404", w.Code)
	}
}
