package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/dataviz-search/internal/config"
	"github.com/kirillkom/dataviz-search/internal/core/ports"
	"github.com/kirillkom/dataviz-search/internal/core/usecase"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/queue/nats"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/dataviz-search/internal/infrastructure/resilience"
	"github.com/kirillkom/dataviz-search/internal/observability/metrics"
)

// Worker holds the dependencies of the transcript writer.
type Worker struct {
	Config      config.Config
	Queue       ports.TranscriptSubscriber
	Transcripts *usecase.TranscriptUseCase
	Metrics     *metrics.WorkerMetrics

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config) (*Worker, error) {
	db, err := openTranscriptDB(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ClientName:         WorkerServiceName,
		ResilienceExecutor: resilience.NewExecutor(cfg.ResilienceConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &Worker{
		Config:      cfg,
		Queue:       queue,
		Transcripts: usecase.NewTranscriptUseCase(postgres.NewTranscriptRepository(db)),
		Metrics:     metrics.NewWorkerMetrics(WorkerServiceName),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
