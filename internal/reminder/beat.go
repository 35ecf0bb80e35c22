package reminder

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Enqueuer submits the periodic sweep task onto the shared queue so a
// worker executes it with the at-least-once guarantees of the broker.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) error
}

// Beat ticks once a minute and enqueues a reminder_sweep task. If the
// broker is down the tick is skipped; the next one covers the window
// because the sweep looks two minutes wide.
type Beat struct {
	cron    *cron.Cron
	queue   Enqueuer
	logger  *slog.Logger
	taskTyp string
}

func NewBeat(queue Enqueuer, taskType string, logger *slog.Logger) *Beat {
	return &Beat{
		cron:    cron.New(),
		queue:   queue,
		logger:  logger,
		taskTyp: taskType,
	}
}

func (b *Beat) Start() error {
	_, err := b.cron.AddFunc("@every 1m", func() {
		if err := b.queue.Enqueue(context.Background(), b.taskTyp, nil); err != nil {
			b.logger.Error("reminder beat enqueue failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	b.cron.Start()
	b.logger.Info("reminder beat started", "period", "1m")
	return nil
}

func (b *Beat) Stop() {
	ctx := b.cron.Stop()
	<-ctx.Done()
}
