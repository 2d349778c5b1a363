package bootstrap

import (
	"context"
	"os"
	"sync"

	"subscan_server/config"

	"github.com/rs/zerolog"
)

// Worker drives the scan pipeline's chunk queue consumer, leasing jobs off
// the Redis Streams work queue and dispatching them to the orchestrator.
type Worker struct {
	deps   *Dependencies
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	zlog   zerolog.Logger
}

func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}, cleanup, nil
}

func (w *Worker) Start() {
	if w.deps.ScanConsumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting chunk queue consumer...")
			if err := w.deps.ScanConsumer.Run(w.ctx); err != nil && err != context.Canceled {
				w.zlog.Error().Err(err).Msg("Chunk queue consumer error")
			}
		}()
	} else {
		w.zlog.Warn().Msg("Scan pipeline disabled, worker has nothing to consume")
	}

	<-w.ctx.Done()
}

func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
