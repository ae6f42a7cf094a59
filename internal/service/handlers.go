package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/logger"
	"github.com/medgrid/scanflow/internal/repository"
)

// cbctHandler finalizes volumetric scan jobs. The registrar has already
// consolidated the multi-file output into a bundle entry; what remains is
// the subject's processing-status field.
type cbctHandler struct{}

func (cbctHandler) HandleCompletion(ctx context.Context, repos *repository.Repos, job *domain.Job, _ *CompletionResult) (bool, error) {
	if job.PatientID == nil {
		return false, nil
	}
	if err := repos.Patients.SetCBCTStatus(ctx, *job.PatientID, domain.ScanStatusProcessed); err != nil {
		return false, err
	}
	return true, nil
}

func (cbctHandler) HandleFailure(ctx context.Context, repos *repository.Repos, job *domain.Job, _ string) (bool, error) {
	// Retrying jobs have not failed yet; only terminal failure marks the subject.
	if job.PatientID == nil || job.Status != domain.JobStatusFailed {
		return false, nil
	}
	if err := repos.Patients.SetCBCTStatus(ctx, *job.PatientID, domain.ScanStatusFailed); err != nil {
		return false, err
	}
	return true, nil
}

// iosHandler finalizes surface-pair scan jobs. Per-subtype artifacts
// (upper/lower) are typed by the registrar; dependent classification jobs
// get their input resolved by the dependency resolver when they unblock.
type iosHandler struct{}

func (iosHandler) HandleCompletion(ctx context.Context, repos *repository.Repos, job *domain.Job, _ *CompletionResult) (bool, error) {
	if job.PatientID == nil {
		return false, nil
	}
	if err := repos.Patients.SetIOSStatus(ctx, *job.PatientID, domain.ScanStatusProcessed); err != nil {
		return false, err
	}
	return true, nil
}

func (iosHandler) HandleFailure(ctx context.Context, repos *repository.Repos, job *domain.Job, _ string) (bool, error) {
	if job.PatientID == nil || job.Status != domain.JobStatusFailed {
		return false, nil
	}
	if err := repos.Patients.SetIOSStatus(ctx, *job.PatientID, domain.ScanStatusFailed); err != nil {
		return false, err
	}
	return true, nil
}

// audioHandler stores transcriptions. The text comes from the worker logs
// when non-empty, otherwise from a .txt output artifact, otherwise the
// transcription stays empty. The first machine transcription is preserved
// write-once next to the editable copy.
type audioHandler struct{}

func (audioHandler) HandleCompletion(ctx context.Context, repos *repository.Repos, job *domain.Job, res *CompletionResult) (bool, error) {
	if job.CaptureID == nil {
		return false, nil
	}

	text := strings.TrimSpace(res.Logs)
	if text == "" {
		text = textFromArtifacts(ctx, res.Outputs)
	}
	if text == "" {
		logger.CtxWarn(ctx, "Audio job %s completed without a transcription", job.ID)
		return false, nil
	}

	capture, err := repos.Captures.GetByID(ctx, *job.CaptureID)
	if err != nil {
		return false, err
	}
	if capture.AutoTranscript == "" {
		capture.AutoTranscript = text
	}
	capture.Transcript = text
	if err := repos.Captures.Save(ctx, capture); err != nil {
		return false, err
	}
	return true, nil
}

func (audioHandler) HandleFailure(context.Context, *repository.Repos, *domain.Job, string) (bool, error) {
	return false, nil
}

// textFromArtifacts returns the contents of the first .txt output that can
// be read, scanning output names in no particular order.
func textFromArtifacts(ctx context.Context, outputs map[string]string) string {
	for name, path := range outputs {
		if strings.ToLower(filepath.Ext(path)) != ".txt" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.CtxWarn(ctx, "Cannot read transcription artifact %q at %s: %v", name, path, err)
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text
		}
	}
	return ""
}

// biteHandler parses the classification payload from the worker logs or a
// .json output artifact and upserts the single pipeline classification for
// the subject.
type biteHandler struct{}

func (biteHandler) HandleCompletion(ctx context.Context, repos *repository.Repos, job *domain.Job, res *CompletionResult) (bool, error) {
	if job.PatientID == nil {
		return false, nil
	}

	payload := parseClassification([]byte(res.Logs))
	if payload == nil {
		payload = classificationFromArtifacts(ctx, res.Outputs)
	}
	if payload == nil {
		logger.CtxWarn(ctx, "Classification job %s completed without a parsable result", job.ID)
		return false, nil
	}

	record := &domain.BiteClassification{
		PatientID: *job.PatientID,
		Source:    domain.ClassificationSourcePipeline,
		Result:    payload,
	}
	if err := repos.Classifications.Upsert(ctx, record); err != nil {
		return false, err
	}
	return true, nil
}

func (biteHandler) HandleFailure(context.Context, *repository.Repos, *domain.Job, string) (bool, error) {
	return false, nil
}

// isClassificationResultFile matches the filenames the classification
// worker writes its structured result to.
func isClassificationResultFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if !strings.HasSuffix(base, ".json") {
		return false
	}
	return strings.Contains(base, "classification") || strings.Contains(base, "bite") || base == "result.json"
}

func classificationFromArtifacts(ctx context.Context, outputs map[string]string) domain.MetaMap {
	for name, path := range outputs {
		if !isClassificationResultFile(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.CtxWarn(ctx, "Cannot read classification artifact %q at %s: %v", name, path, err)
			continue
		}
		if payload := parseClassification(data); payload != nil {
			return payload
		}
	}
	return nil
}

func parseClassification(data []byte) domain.MetaMap {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	var payload domain.MetaMap
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}
