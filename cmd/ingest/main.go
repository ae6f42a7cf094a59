package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/medgrid/scanflow/internal/config"
	"github.com/medgrid/scanflow/internal/logger"
	"github.com/medgrid/scanflow/internal/repository"
	"github.com/medgrid/scanflow/internal/service"
)

// ingest creates a processing job (with optional dependency links) for a
// scan file that has been dropped on shared storage. This is the external
// ingestion path: it only ever creates jobs and registers raw inputs; all
// status transitions belong to the workers.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "scanflow-ingest",
	})
	logger.SetDefault(appLogger)

	modality := flag.String("modality", "", "Modality slug (cbct, ios, audio, bite_classification)")
	input := flag.String("input", "", "Input file path or JSON-encoded path map")
	patient := flag.String("patient", "", "Owning patient id")
	capture := flag.String("capture", "", "Owning capture id")
	priority := flag.Int("priority", 0, "Job priority, higher runs first")
	dependsOn := flag.String("depends-on", "", "Comma-separated job ids this job depends on")
	inputFromDeps := flag.Bool("input-from-deps", false, "Resolve input from dependency outputs")
	registerRaw := flag.Bool("register-raw", false, "Also catalog the input file as a raw artifact")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *modality == "" {
		appLogger.Fatal("-modality is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	ctx := context.Background()
	repos := repository.NewRepos(db)
	if err := repos.Modalities.SeedDefaults(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to seed modalities")
	}

	cache := service.NewModalityCache(repos.Modalities, cfg.Modalities.CacheSize, cfg.Modalities.CacheTTL)
	orchestrator := service.NewOrchestrator(db, cache, service.NewDispatcher(), nil, nil, cfg.Queue)

	req := &service.CreateJobRequest{
		Modality:      *modality,
		Priority:      *priority,
		InputPath:     *input,
		InputFromDeps: *inputFromDeps,
	}
	if *patient != "" {
		req.PatientID = patient
	}
	if *capture != "" {
		req.CaptureID = capture
	}
	if *dependsOn != "" {
		req.DependsOn = strings.Split(*dependsOn, ",")
	}

	job, err := orchestrator.CreateJob(ctx, req)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to create job")
	}

	if *registerRaw && *input != "" {
		if _, statErr := os.Stat(*input); statErr == nil {
			mod, err := cache.Get(ctx, *modality)
			if err == nil {
				registrar := service.NewRegistrar(repos, nil)
				if _, err := registrar.RegisterRaw(ctx, mod, req.PatientID, *input); err != nil {
					appLogger.WithError(err).Warn("Failed to catalog raw input")
				}
			}
		}
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobID:    job.ID,
		logger.FieldModality: job.Modality,
		"status":             job.Status,
	}).Info("Job created")
}
