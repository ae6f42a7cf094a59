package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medgrid/scanflow/internal/config"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/repository"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func newTestOrchestrator(t *testing.T, queue config.QueueConfig) (*Orchestrator, *repository.Repos) {
	t.Helper()
	db := newTestDB(t)
	repos := repository.NewRepos(db)
	cache := NewModalityCache(repos.Modalities, 16, time.Minute)
	return NewOrchestrator(db, cache, NewDispatcher(), nil, nil, queue), repos
}

func newPatient(t *testing.T, repos *repository.Repos) *domain.Patient {
	t.Helper()
	patient := &domain.Patient{ID: uuid.New().String()}
	if err := repos.Patients.Create(context.Background(), patient); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return patient
}

func newCapture(t *testing.T, repos *repository.Repos) *domain.Capture {
	t.Helper()
	capture := &domain.Capture{ID: uuid.New().String()}
	if err := repos.Captures.Create(context.Background(), capture); err != nil {
		t.Fatalf("create capture: %v", err)
	}
	return capture
}

// writeTempFile materializes a worker output on disk so the registrar can
// hash it.
func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
