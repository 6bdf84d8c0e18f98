package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type QueueProcessorOptions struct {
	Interval        time.Duration
	CleanupInterval time.Duration
	Retention       time.Duration
}

// QueueProcessor drains the delivery queue on a fixed interval and periodically purges old
// terminal rows.
type QueueProcessor struct {
	alerting *AlertingManager
	logger   *zap.Logger
	opts     QueueProcessorOptions

	active   atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueueProcessor(alerting *AlertingManager, logger *zap.Logger, opts QueueProcessorOptions) *QueueProcessor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	return &QueueProcessor{
		alerting: alerting,
		logger:   logger,
		opts:     opts,
		stopChan: make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval until Stop or ctx is done.
func (p *QueueProcessor) Start(ctx context.Context) {
	if !p.active.CompareAndSwap(false, true) {
		p.logger.Warn("queue processor already running")
		return
	}
	p.wg.Add(1)
	go p.run(ctx)
	p.logger.Info("queue processor started", zap.Duration("interval", p.opts.Interval))
}

// Stop prevents future ticks and waits for the current sweep to return.
func (p *QueueProcessor) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
	if p.active.CompareAndSwap(true, false) {
		p.logger.Info("queue processor stopped")
	}
}

func (p *QueueProcessor) Active() bool {
	return p.active.Load()
}

// RunNow performs one sweep outside the ticker.
func (p *QueueProcessor) RunNow(ctx context.Context) (QueueResult, error) {
	return p.alerting.ProcessQueue(ctx)
}

func (p *QueueProcessor) run(ctx context.Context) {
	defer p.wg.Done()

	p.sweep(ctx)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	var cleanup <-chan time.Time
	if p.opts.CleanupInterval > 0 && p.opts.Retention > 0 {
		cleanupTicker := time.NewTicker(p.opts.CleanupInterval)
		defer cleanupTicker.Stop()
		cleanup = cleanupTicker.C
	}

	for {
		select {
		case <-ticker.C:
			p.sweep(ctx)
		case <-cleanup:
			if _, err := p.alerting.Cleanup(ctx, p.opts.Retention); err != nil {
				p.logger.Error("queue cleanup failed", zap.Error(err))
			}
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *QueueProcessor) sweep(ctx context.Context) {
	if _, err := p.alerting.ProcessQueue(ctx); err != nil {
		p.logger.Error("queue sweep failed", zap.Error(err))
	}
}
