// Package importer wires one configured import together: Snowflake client,
// checkpoint store, transform strategy, capture sink and job runner. It owns
// the lifecycle ordering the pipeline depends on: setup fails fast on any
// configuration error before a single batch is scheduled, and teardown
// persists the durable checkpoint before the connection is released.
package importer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crestline-io/snowcap/internal/runner"
	"github.com/crestline-io/snowcap/pkg/checkpoint"
	"github.com/crestline-io/snowcap/pkg/config"
	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/logger"
	"github.com/crestline-io/snowcap/pkg/models"
	"github.com/crestline-io/snowcap/pkg/sink"
	"github.com/crestline-io/snowcap/pkg/snowflake"
	"github.com/crestline-io/snowcap/pkg/transform"
)

// defaultCheckpointPath is used when the config does not name one.
const defaultCheckpointPath = "snowcap-checkpoint.json"

// teardownTimeout bounds the final durable checkpoint write.
const teardownTimeout = 10 * time.Second

// Importer is one fully wired import pipeline.
type Importer struct {
	cfg        *config.ImportConfig
	client     *snowflake.Client
	checkpoint *checkpoint.Checkpoint
	runner     *runner.Runner
	log        *zap.Logger
}

// New builds an Importer from a validated configuration. Every configuration
// precondition is checked here: attachments, transform construction, sink
// endpoint, connectivity, checkpoint load, and the historical watermark.
func New(ctx context.Context, cfg *config.ImportConfig) (*Importer, error) {
	attachments, err := cfg.LoadAttachments()
	if err != nil {
		return nil, err
	}

	strategy, err := transform.Create(cfg.TransformationName, attachments)
	if err != nil {
		return nil, err
	}

	if cfg.CaptureEndpoint == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "missing required config key \"capture_endpoint\"")
	}
	captureSink := sink.NewHTTPSink(cfg.CaptureEndpoint, cfg.CaptureAPIKey)

	client, err := snowflake.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	checkpointPath := cfg.CheckpointPath
	if checkpointPath == "" {
		checkpointPath = defaultCheckpointPath
	}
	cp := checkpoint.New(checkpoint.NewFileStore(checkpointPath), cfg.BatchSizeInt(), cfg.Mode())

	if _, err := cp.LoadInitialOffset(ctx); err != nil {
		client.Close()
		return nil, err
	}

	// A historical import is bounded by the row count observed at first
	// successful startup. The watermark never moves after that.
	if cfg.Mode() == models.ModeHistorical {
		if _, ok := cp.TotalRowsSnapshot(); !ok {
			total, err := client.CountRows(ctx, cfg.Table)
			if err != nil {
				client.Close()
				return nil, err
			}
			if err := cp.CaptureTotalRows(ctx, total); err != nil {
				client.Close()
				return nil, err
			}
		}
	}

	run := runner.New(client, cp, strategy, captureSink, runner.Options{
		Table:     cfg.Table,
		OrderBy:   cfg.OrderBy,
		BatchSize: cfg.BatchSizeInt(),
		Interval:  time.Duration(cfg.FrequencySeconds()) * time.Second,
		Mode:      cfg.Mode(),
	})

	return &Importer{
		cfg:        cfg,
		client:     client,
		checkpoint: cp,
		runner:     run,
		log:        logger.WithContext(ctx).With(zap.String("component", "importer")),
	}, nil
}

// Run drives the import until the context is cancelled or the pipeline
// reaches a terminal state, then tears down. The runner only returns after
// any in-flight batch has completed, so the checkpoint persisted here always
// includes every ephemeral increment, and the connection is released last.
func (i *Importer) Run(ctx context.Context) error {
	runErr := i.runner.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := i.checkpoint.Persist(shutdownCtx); err != nil {
		// Losing the durable write means reprocessing on next start; surface
		// it as the teardown failure it is.
		i.log.Error("failed to persist checkpoint during teardown", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	if err := i.client.Close(); err != nil {
		i.log.Warn("failed to close Snowflake connection", zap.Error(err))
	}

	return runErr
}
