package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	appconfig "gridflow/config"
	"gridflow/logger"
	"gridflow/reader/ercotapi"
	"gridflow/reader/portal"
	"gridflow/writer"
)

// Renderer turns finished tables into an artifact file and returns its path.
type Renderer interface {
	Write(base string, at time.Time, sheets ...writer.Sheet) (string, error)
}

// Uploader mirrors a finished artifact to remote storage.
type Uploader interface {
	Upload(ctx context.Context, localPath string, runDate time.Time) (string, error)
}

// Notifier announces a finished run.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Pipeline wires the fetchers, processors and writers for one scheduled
// run. Each run is sequential and owns its tables; a failure on a required
// source aborts the run with no partial artifact.
type Pipeline struct {
	config   *appconfig.Config
	fetcher  *portal.Fetcher
	api      *ercotapi.Client
	renderer Renderer
	uploader Uploader
	notifier Notifier
	log      *logger.Log
	now      func() time.Time
}

// New builds a pipeline with the default collaborators. The S3 uploader is
// only constructed when storage is enabled, so runs without AWS access
// never touch the SDK credential chain.
func New(ctx context.Context, cfg *appconfig.Config) (*Pipeline, error) {
	p := &Pipeline{
		config:   cfg,
		fetcher:  portal.NewFetcher(cfg, nil),
		api:      ercotapi.NewClient(cfg),
		renderer: writer.NewWorkbookWriter(cfg.Output.ProductionDir),
		notifier: writer.NewSlackNotifier(cfg),
		log:      logger.GetLogger(),
		now:      time.Now,
	}
	if cfg.Storage.S3.Enabled {
		uploader, err := writer.NewS3Uploader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init s3 uploader: %w", err)
		}
		p.uploader = uploader
	}
	return p, nil
}

// Run executes the named phase.
func (p *Pipeline) Run(ctx context.Context, phase string) error {
	runID := uuid.New().String()
	start := p.now()
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{
		"run_id": runID,
		"phase":  phase,
	})
	log.Info("pipeline run starting")

	if _, err := writer.ArchiveOldArtifacts(p.config.Output.ProductionDir, p.config.Output.ArchiveDir, start); err != nil {
		log.WithError(err).Warn("archive housekeeping failed")
	}

	var (
		artifact string
		err      error
	)
	switch phase {
	case "phase1":
		artifact, err = p.runPhase1(ctx, start)
	case "phase2":
		artifact, err = p.runPhase2(ctx, start)
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
	if err != nil {
		log.WithError(err).Error("pipeline run failed")
		return err
	}

	if p.uploader != nil {
		if _, uerr := p.uploader.Upload(ctx, artifact, start); uerr != nil {
			log.WithError(uerr).Error("artifact upload failed")
			return uerr
		}
	}
	if nerr := p.notifier.Notify(ctx, fmt.Sprintf("%s run finished: %s", phase, artifact)); nerr != nil {
		log.WithError(nerr).Warn("notification failed")
	}

	duration := p.now().Sub(start)
	logger.LogPerformanceEntry(log, "pipeline", phase, duration, logger.Fields{"artifact": artifact})
	p.log.LogMetric("pipeline", "run_duration_ms", duration.Milliseconds(), "gauge", logger.Fields{"phase": phase})
	log.WithFields(logger.Fields{"artifact": artifact}).Info("pipeline run finished")
	return nil
}
