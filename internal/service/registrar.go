package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/logger"
	"github.com/medgrid/scanflow/internal/repository"
	"github.com/medgrid/scanflow/internal/storage"
	_ "golang.org/x/image/webp"
)

// typeVocabulary is the set of canonical artifact types a direct
// slug+suffix(+subtype) match may produce.
var typeVocabulary = map[string]bool{
	"cbct_raw":                      true,
	"cbct_processed":                true,
	"ios_raw":                       true,
	"ios_processed":                 true,
	"ios_raw_upper":                 true,
	"ios_raw_lower":                 true,
	"ios_processed_upper":           true,
	"ios_processed_lower":           true,
	"audio_raw":                     true,
	"audio_processed":               true,
	"bite_classification_raw":       true,
	"bite_classification_processed": true,
	"volume_raw":                    true,
	"image_raw":                     true,
}

// irregularSlugs maps legacy or alternate modality names onto the canonical
// slugs the vocabulary is built from.
var irregularSlugs = map[string]string{
	"cone_beam":      "cbct",
	"conebeam_ct":    "cbct",
	"intraoral":      "ios",
	"intraoral_scan": "ios",
	"surface_scan":   "ios",
	"speech":         "audio",
	"recording":      "audio",
	"bite":           "bite_classification",
}

var volumetricExtensions = map[string]bool{
	".dcm": true, ".dicom": true, ".nii": true, ".nrrd": true, ".vol": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".gif": true, ".webp": true,
}

// ResolveArtifactType derives the canonical artifact type for a file:
// direct vocabulary match on slug+suffix(+subtype) first, then the irregular
// name table, then extension heuristics, then the bare raw/processed suffix.
func ResolveArtifactType(slug string, processed bool, subtype, path string) string {
	suffix := "raw"
	if processed {
		suffix = "processed"
	}

	candidate := slug + "_" + suffix
	if subtype != "" {
		candidate += "_" + subtype
	}
	if typeVocabulary[candidate] {
		return candidate
	}

	if base, ok := irregularSlugs[slug]; ok {
		candidate = base + "_" + suffix
		if subtype != "" {
			candidate += "_" + subtype
		}
		if typeVocabulary[candidate] {
			return candidate
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if volumetricExtensions[ext] {
		return "volume_raw"
	}
	if imageExtensions[ext] {
		return "image_raw"
	}

	return suffix
}

// Registrar content-hashes and catalogs the artifacts a job produced.
type Registrar struct {
	repos    *repository.Repos
	archiver storage.ArchiveStore // nil disables archival
}

// NewRegistrar creates a Registrar bound to a repository bundle.
func NewRegistrar(repos *repository.Repos, archiver storage.ArchiveStore) *Registrar {
	return &Registrar{repos: repos, archiver: archiver}
}

type fileInfo struct {
	name string
	path string
	size int64
	hash string
}

// RegisterOutputs catalogs the outputs of a completed job. Paths missing on
// disk are logged and skipped. Modalities whose completion yields multiple
// simultaneous files are consolidated into a single bundle entry; all others
// get one entry per file with supersede-by-path semantics.
func (g *Registrar) RegisterOutputs(ctx context.Context, job *domain.Job, mod *domain.Modality, outputs map[string]string) ([]domain.ArtifactEntry, error) {
	files := g.collect(ctx, outputs)
	if len(files) == 0 {
		return nil, nil
	}
	if mod != nil && mod.MultiFile {
		entry, err := g.registerBundle(ctx, job, mod, files)
		if err != nil {
			return nil, err
		}
		return []domain.ArtifactEntry{*entry}, nil
	}
	return g.registerFiles(ctx, job, mod, files)
}

// RegisterRaw catalogs a single raw input file outside any job, as the
// ingestion path does when a scan is first dropped off.
func (g *Registrar) RegisterRaw(ctx context.Context, mod *domain.Modality, patientID *string, path string) (*domain.ArtifactEntry, error) {
	size, hash, err := hashFile(path)
	if err != nil {
		return nil, err
	}
	slug := ""
	if mod != nil {
		slug = mod.Slug
	}
	entry := &domain.ArtifactEntry{
		ID:           uuid.New().String(),
		ArtifactType: ResolveArtifactType(slug, false, "", path),
		FilePath:     path,
		FileSize:     size,
		SHA256:       hash,
		PatientID:    patientID,
	}
	if err := g.insert(ctx, entry); err != nil {
		return nil, err
	}
	g.archive(ctx, entry)
	return entry, nil
}

// collect stats and hashes every promised output that exists on disk,
// skipping the rest. Results are sorted by output name for determinism.
func (g *Registrar) collect(ctx context.Context, outputs map[string]string) []fileInfo {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var files []fileInfo
	for _, name := range names {
		path := outputs[name]
		size, hash, err := hashFile(path)
		if err != nil {
			logger.CtxWarn(ctx, "Skipping missing output artifact %q at %s: %v", name, path, err)
			continue
		}
		files = append(files, fileInfo{name: name, path: path, size: size, hash: hash})
	}
	return files
}

// registerBundle supersedes any prior processed bundle for the subject and
// inserts one entry whose metadata holds the full file map and whose hash is
// the multi-file sentinel.
func (g *Registrar) registerBundle(ctx context.Context, job *domain.Job, mod *domain.Modality, files []fileInfo) (*domain.ArtifactEntry, error) {
	artifactType := ResolveArtifactType(mod.Slug, true, "", files[0].path)

	if job.PatientID != nil {
		if err := g.repos.Artifacts.DeleteByPatientAndType(ctx, *job.PatientID, artifactType); err != nil {
			return nil, err
		}
	}

	meta := domain.MetaMap{}
	var total int64
	for _, f := range files {
		meta[f.name] = map[string]interface{}{
			"path":   f.path,
			"size":   f.size,
			"sha256": f.hash,
		}
		total += f.size
	}

	entry := &domain.ArtifactEntry{
		ID:           uuid.New().String(),
		ArtifactType: artifactType,
		FilePath:     files[0].path,
		FileSize:     total,
		SHA256:       domain.MultiFileHash,
		PatientID:    job.PatientID,
		CaptureID:    job.CaptureID,
		JobID:        &job.ID,
		Metadata:     meta,
	}
	if err := g.insert(ctx, entry); err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "Registered %s bundle of %d files for job %s", artifactType, len(files), job.ID)
	return entry, nil
}

// registerFiles inserts one entry per file. Subtype is inferred from the
// logical output name when the modality declares subtypes (e.g. upper/lower).
func (g *Registrar) registerFiles(ctx context.Context, job *domain.Job, mod *domain.Modality, files []fileInfo) ([]domain.ArtifactEntry, error) {
	slug := job.Modality
	var subtypes domain.StringArray
	if mod != nil {
		slug = mod.Slug
		subtypes = mod.Subtypes
	}

	entries := make([]domain.ArtifactEntry, 0, len(files))
	for _, f := range files {
		subtype := ""
		if subtypes.Contains(strings.ToLower(f.name)) {
			subtype = strings.ToLower(f.name)
		}
		entry := domain.ArtifactEntry{
			ID:           uuid.New().String(),
			ArtifactType: ResolveArtifactType(slug, true, subtype, f.path),
			FilePath:     f.path,
			FileSize:     f.size,
			SHA256:       f.hash,
			PatientID:    job.PatientID,
			CaptureID:    job.CaptureID,
			JobID:        &job.ID,
			Metadata:     imageMetadata(f.path),
		}
		if err := g.insert(ctx, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// insert writes one catalog entry, superseding a prior entry at the same
// path when it belongs to the same subject and artifact type. A path held by
// an unrelated row is a conflict, never an overwrite.
func (g *Registrar) insert(ctx context.Context, entry *domain.ArtifactEntry) error {
	existing, err := g.repos.Artifacts.GetByPath(ctx, entry.FilePath)
	if err != nil {
		return err
	}
	if existing != nil {
		if !sameLineage(existing, entry) {
			return fmt.Errorf("path %s held by artifact %s (%s): %w",
				entry.FilePath, existing.ID, existing.ArtifactType, domain.ErrRegistryConflict)
		}
		if err := g.repos.Artifacts.DeleteByID(ctx, existing.ID); err != nil {
			return err
		}
	}
	if err := g.repos.Artifacts.Create(ctx, entry); err != nil {
		return err
	}
	g.archive(ctx, entry)
	return nil
}

// sameLineage reports whether two entries describe the same logical artifact
// slot: identical type and identical subject links.
func sameLineage(a, b *domain.ArtifactEntry) bool {
	return a.ArtifactType == b.ArtifactType &&
		strPtrEqual(a.PatientID, b.PatientID) &&
		strPtrEqual(a.CaptureID, b.CaptureID)
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// archive mirrors a cataloged file into the archive object store.
// Best-effort: failures are logged, never propagated.
func (g *Registrar) archive(ctx context.Context, entry *domain.ArtifactEntry) {
	if g.archiver == nil || entry.IsBundle() {
		return
	}
	f, err := os.Open(entry.FilePath)
	if err != nil {
		logger.CtxWarn(ctx, "Archive skipped, cannot open %s: %v", entry.FilePath, err)
		return
	}
	defer f.Close()

	key := fmt.Sprintf("artifacts/%s/%s", entry.ID, filepath.Base(entry.FilePath))
	contentType := mime.TypeByExtension(filepath.Ext(entry.FilePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := g.archiver.Upload(ctx, key, f, entry.FileSize, contentType); err != nil {
		logger.CtxWarn(ctx, "Archive upload failed for %s: %v", entry.FilePath, err)
	}
}

// hashFile returns the size and hex SHA-256 of the file at path.
func hashFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

// imageMetadata records pixel dimensions for image artifacts; nil otherwise.
func imageMetadata(path string) domain.MetaMap {
	if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil
	}
	return domain.MetaMap{"width": cfg.Width, "height": cfg.Height}
}
