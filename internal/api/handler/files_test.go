package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/medgrid/scanflow/internal/domain"
)

func (g *gateway) createArtifact(t *testing.T, entry *domain.ArtifactEntry) *domain.ArtifactEntry {
	t.Helper()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := g.repos.Artifacts.Create(context.Background(), entry); err != nil {
		t.Fatalf("create artifact: %v", err)
	}
	return entry
}

func TestServeArtifact(t *testing.T) {
	g := newGateway(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "pano.png")
	if err := os.WriteFile(path, []byte("image bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	entry := g.createArtifact(t, &domain.ArtifactEntry{
		ArtifactType: "image_raw",
		FilePath:     path,
		FileSize:     int64(len("image bytes")),
		SHA256:       "deadbeef",
	})

	w := g.do(t, http.MethodGet, fmt.Sprintf("/files/serve/%s/", entry.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "image bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestServeArtifactNotFoundCases(t *testing.T) {
	g := newGateway(t)

	// Unknown id.
	w := g.do(t, http.MethodGet, fmt.Sprintf("/files/serve/%s/", uuid.New().String()), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}

	// Bundles have no single servable path.
	bundle := g.createArtifact(t, &domain.ArtifactEntry{
		ArtifactType: "cbct_processed",
		FilePath:     "/data/bundle/first.vol",
		SHA256:       domain.MultiFileHash,
	})
	w = g.do(t, http.MethodGet, fmt.Sprintf("/files/serve/%s/", bundle.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("bundle: status = %d, want 404", w.Code)
	}

	// Cataloged but missing on disk.
	gone := g.createArtifact(t, &domain.ArtifactEntry{
		ArtifactType: "audio_raw",
		FilePath:     filepath.Join(t.TempDir(), "never-written.wav"),
		SHA256:       "deadbeef",
	})
	w = g.do(t, http.MethodGet, fmt.Sprintf("/files/serve/%s/", gone.ID), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file: status = %d, want 404", w.Code)
	}
}
