package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/medgrid/scanflow/internal/config"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateJobValidation(t *testing.T) {
	orch, repos := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()
	patient := newPatient(t, repos)
	capture := newCapture(t, repos)

	cases := []struct {
		name string
		req  *CreateJobRequest
	}{
		{"missing modality", &CreateJobRequest{}},
		{"unknown modality", &CreateJobRequest{Modality: "mri"}},
		{"patient and capture", &CreateJobRequest{Modality: domain.ModalityCBCT, PatientID: &patient.ID, CaptureID: &capture.ID}},
		{"unknown dependency", &CreateJobRequest{Modality: domain.ModalityCBCT, DependsOn: []string{uuid.New().String()}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := orch.CreateJob(ctx, tc.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreateJobInitialStatus(t *testing.T) {
	orch, repos := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()

	free, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityCBCT})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, free.Status)
	assert.Equal(t, 3, free.MaxRetries)

	gated, err := orch.CreateJob(ctx, &CreateJobRequest{
		Modality:  domain.ModalityIOS,
		DependsOn: []string{free.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusBlocked, gated.Status)

	// A dependency that is already completed does not gate.
	done := createJob(t, repos, domain.JobStatusCompleted)
	ready, err := orch.CreateJob(ctx, &CreateJobRequest{
		Modality:  domain.ModalityIOS,
		DependsOn: []string{done.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, ready.Status)
}

func TestDependencyChainPropagation(t *testing.T) {
	orch, repos := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()
	patient := newPatient(t, repos)

	scan, err := orch.CreateJob(ctx, &CreateJobRequest{
		Modality:  domain.ModalityIOS,
		PatientID: &patient.ID,
		InputPath: "/incoming/scan.stl",
	})
	require.NoError(t, err)

	classify, err := orch.CreateJob(ctx, &CreateJobRequest{
		Modality:      domain.ModalityBite,
		PatientID:     &patient.ID,
		DependsOn:     []string{scan.ID},
		InputFromDeps: true,
	})
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusBlocked, classify.Status)

	_, err = orch.Claim(ctx, scan.ID, "mesh-worker-1")
	require.NoError(t, err)

	dir := t.TempDir()
	outputs := map[string]string{
		"upper": writeTempFile(t, dir, "upper.stl", "upper arch mesh"),
		"lower": writeTempFile(t, dir, "lower.stl", "lower arch mesh"),
	}
	completed, err := orch.Complete(ctx, scan.ID, outputs, "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	// The dependent unblocked in the same transaction, with its input
	// rewritten to the dependency's output map.
	got, err := orch.GetStatus(ctx, classify.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)

	var resolved map[string]string
	require.NoError(t, json.Unmarshal([]byte(got.InputPath), &resolved))
	assert.Equal(t, outputs, resolved)

	// Modality side effects: patient scan status and typed artifacts.
	refreshed, err := repos.Patients.GetByID(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusProcessed, refreshed.IOSStatus)

	entries, err := repos.Artifacts.ListByJob(ctx, scan.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCompleteRequiresProcessing(t *testing.T) {
	orch, _ := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityAudio})
	require.NoError(t, err)

	_, err = orch.Complete(ctx, job.ID, map[string]string{}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompleteWithMissingOutputsStillCompletes(t *testing.T) {
	orch, repos := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityAudio})
	require.NoError(t, err)
	_, err = orch.Claim(ctx, job.ID, "w1")
	require.NoError(t, err)

	completed, err := orch.Complete(ctx, job.ID, map[string]string{
		"transcript": "/nonexistent/transcript.txt",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, completed.Status)

	entries, err := repos.Artifacts.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFailRetryLifecycle(t *testing.T) {
	orch, _ := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityAudio, MaxRetries: 2})
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		_, err = orch.Claim(ctx, job.ID, "w1")
		require.NoError(t, err)
		failed, err := orch.Fail(ctx, job.ID, "transient decode error", true)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRetrying, failed.Status)
		assert.Equal(t, attempt, failed.RetryCount)
		assert.Nil(t, failed.NextAttemptAt)
	}

	// Third failure exhausts the budget.
	_, err = orch.Claim(ctx, job.ID, "w1")
	require.NoError(t, err)
	failed, err := orch.Fail(ctx, job.ID, "transient decode error", true)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, 3, strings.Count(failed.ErrorLogs, "transient decode error"))

	// Terminal jobs reject further transitions.
	_, err = orch.Fail(ctx, job.ID, "again", true)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = orch.Complete(ctx, job.ID, map[string]string{}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFailNonRetryableIsTerminal(t *testing.T) {
	orch, repos := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()
	patient := newPatient(t, repos)

	job, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityCBCT, PatientID: &patient.ID})
	require.NoError(t, err)
	_, err = orch.Claim(ctx, job.ID, "w1")
	require.NoError(t, err)

	failed, err := orch.Fail(ctx, job.ID, "corrupt volume", false)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, failed.Status)
	assert.Equal(t, 0, failed.RetryCount)

	refreshed, err := repos.Patients.GetByID(ctx, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanStatusFailed, refreshed.CBCTStatus)
}

func TestRetryBackoffDefersEligibility(t *testing.T) {
	orch, _ := newTestOrchestrator(t, config.QueueConfig{RetryBackoff: time.Hour})
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityAudio})
	require.NoError(t, err)
	_, err = orch.Claim(ctx, job.ID, "w1")
	require.NoError(t, err)

	failed, err := orch.Fail(ctx, job.ID, "transient", true)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusRetrying, failed.Status)
	require.NotNil(t, failed.NextAttemptAt)
	assert.True(t, failed.NextAttemptAt.After(time.Now()))

	ready, err := orch.ListReady(ctx, domain.ModalityAudio)
	require.NoError(t, err)
	assert.Empty(t, ready, "backed-off job must not be polled early")
}

func TestListReadyRespectsBatchAndOrder(t *testing.T) {
	orch, _ := newTestOrchestrator(t, config.QueueConfig{BatchSize: 2})
	ctx := context.Background()

	_, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityCBCT, Priority: 1})
	require.NoError(t, err)
	high, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityCBCT, Priority: 9})
	require.NoError(t, err)
	mid, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityCBCT, Priority: 5})
	require.NoError(t, err)

	ready, err := orch.ListReady(ctx, domain.ModalityCBCT)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, high.ID, ready[0].ID)
	assert.Equal(t, mid.ID, ready[1].ID)

	// Unknown modality fails validation at the boundary.
	_, err = orch.ListReady(ctx, "mri")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimRequiresWorkerID(t *testing.T) {
	orch, _ := newTestOrchestrator(t, config.QueueConfig{})
	job, err := orch.CreateJob(context.Background(), &CreateJobRequest{Modality: domain.ModalityCBCT})
	require.NoError(t, err)

	_, err = orch.Claim(context.Background(), job.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAddDependencyThroughOrchestrator(t *testing.T) {
	orch, _ := newTestOrchestrator(t, config.QueueConfig{})
	ctx := context.Background()

	a, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityIOS})
	require.NoError(t, err)
	b, err := orch.CreateJob(ctx, &CreateJobRequest{Modality: domain.ModalityBite})
	require.NoError(t, err)

	require.NoError(t, orch.AddDependency(ctx, b.ID, a.ID))
	got, err := orch.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusBlocked, got.Status)

	assert.ErrorIs(t, orch.AddDependency(ctx, a.ID, b.ID), domain.ErrDependencyCycle)

	require.NoError(t, orch.RemoveDependency(ctx, b.ID, a.ID))
	got, err = orch.GetStatus(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
}
