package scheduler

import (
	"context"
	"time"

	"fieldops_backend/internal/outbox"
	"fieldops_backend/platform/logger"
)

const defaultPollInterval = 5 * time.Second

// BatchProcessor drains one batch of outbox events.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, limit int) (outbox.BatchResult, error)
}

// OutboxPoller calls the dispatcher on a fixed interval. Several pollers
// may run at once; the claim lease keeps them off each other's events.
type OutboxPoller struct {
	dispatcher BatchProcessor
	interval   time.Duration
	batchSize  int
	log        *logger.Logger
}

func NewOutboxPoller(dispatcher BatchProcessor, interval time.Duration, batchSize int, log *logger.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &OutboxPoller{
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		log:        log,
	}
}

// Run polls until ctx is done. A full batch is followed immediately by
// another one.
func (p *OutboxPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for ctx.Err() == nil {
			result, err := p.dispatcher.ProcessBatch(ctx, p.batchSize)
			if err != nil {
				p.log.Warn("outbox poll failed", "error", err)
				break
			}
			if p.batchSize <= 0 || result.Total < p.batchSize {
				break
			}
		}
	}
}
