package tasks_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/google/uuid"

	"github.com/teamplan/scheduler/internal/tasks"
)

// In-memory broker: feeds a fixed set of tasks once, records claims,
// acks and retries.
type mockBroker struct {
	mu      sync.Mutex
	pending []*tasks.Task
	claimed map[uuid.UUID]struct{}
	acked   []*tasks.Task
	retried []*tasks.Task
}

func newMockBroker() *mockBroker {
	return &mockBroker{claimed: make(map[uuid.UUID]struct{})}
}

func (b *mockBroker) Dequeue(ctx context.Context, timeout time.Duration) (*tasks.Task, error) {
	b.mu.Lock()
	if len(b.pending) > 0 {
		task := b.pending[0]
		b.pending = b.pending[1:]
		b.claimed[task.ID] = struct{}{}
		b.mu.Unlock()
		return task, nil
	}
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (b *mockBroker) Ack(ctx context.Context, task *tasks.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.claimed, task.ID)
	b.acked = append(b.acked, task)
	return nil
}

func (b *mockBroker) Retry(ctx context.Context, task *tasks.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retried = append(b.retried, task)
	return nil
}

func (b *mockBroker) MoveDueRetries(ctx context.Context) error { return nil }

func (b *mockBroker) ReclaimStale(ctx context.Context) error { return nil }

func (b *mockBroker) retriedTasks() []*tasks.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*tasks.Task(nil), b.retried...)
}

func (b *mockBroker) ackedTasks() []*tasks.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*tasks.Task(nil), b.acked...)
}

func (b *mockBroker) claimedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.claimed)
}

func newTask(taskType string) *tasks.Task {
	return &tasks.Task{ID: uuid.New(), Type: taskType, EnqueuedAt: time.Now().UTC()}
}

var _ = Describe("Pool", func() {
	var (
		broker *mockBroker
		pool   *tasks.Pool
		logger *slog.Logger
	)

	BeforeEach(func() {
		broker = newMockBroker()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		pool = tasks.NewPool(broker, tasks.Config{MaxWorkers: 2, JobQueueSize: 10}, logger)
	})

	It("dispatches tasks to their registered handler", func() {
		var mu sync.Mutex
		var handled []string
		pool.Handle("event_invited", func(ctx context.Context, task *tasks.Task) error {
			mu.Lock()
			handled = append(handled, task.Type)
			mu.Unlock()
			return nil
		})

		broker.pending = []*tasks.Task{newTask("event_invited"), newTask("event_invited")}
		pool.Start()
		defer pool.Shutdown()

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return len(handled)
		}, time.Second, 10*time.Millisecond).Should(Equal(2))
	})

	It("schedules a retry when the handler fails", func() {
		pool.Handle("event_updated", func(ctx context.Context, task *tasks.Task) error {
			return errors.New("push endpoint down")
		})

		task := newTask("event_updated")
		broker.pending = []*tasks.Task{task}
		pool.Start()
		defer pool.Shutdown()

		Eventually(func() int {
			return len(broker.retriedTasks())
		}, time.Second, 10*time.Millisecond).Should(Equal(1))
		Expect(broker.retriedTasks()[0].ID).To(Equal(task.ID))
	})

	It("drops tasks without a handler instead of retrying them", func() {
		broker.pending = []*tasks.Task{newTask("unknown_type")}
		pool.Start()
		defer pool.Shutdown()

		Consistently(func() int {
			return len(broker.retriedTasks())
		}, 100*time.Millisecond, 10*time.Millisecond).Should(BeZero())
		Eventually(broker.ackedTasks, time.Second, 10*time.Millisecond).Should(HaveLen(1))
	})

	It("keeps the task claimed until the handler returns, then acks", func() {
		release := make(chan struct{})
		pool.Handle("event_invited", func(ctx context.Context, task *tasks.Task) error {
			<-release
			return nil
		})

		task := newTask("event_invited")
		broker.pending = []*tasks.Task{task}
		pool.Start()
		defer pool.Shutdown()

		Eventually(broker.claimedCount, time.Second, 10*time.Millisecond).Should(Equal(1))
		Consistently(func() int {
			return len(broker.ackedTasks())
		}, 100*time.Millisecond, 10*time.Millisecond).Should(BeZero())

		close(release)
		Eventually(broker.ackedTasks, time.Second, 10*time.Millisecond).Should(HaveLen(1))
		Expect(broker.ackedTasks()[0].ID).To(Equal(task.ID))
		Expect(broker.claimedCount()).To(BeZero())
	})

	It("acks a failed task after scheduling its retry", func() {
		pool.Handle("event_updated", func(ctx context.Context, task *tasks.Task) error {
			return errors.New("push endpoint down")
		})

		task := newTask("event_updated")
		broker.pending = []*tasks.Task{task}
		pool.Start()
		defer pool.Shutdown()

		Eventually(broker.ackedTasks, time.Second, 10*time.Millisecond).Should(HaveLen(1))
		Expect(broker.retriedTasks()).To(HaveLen(1))
		Expect(broker.claimedCount()).To(BeZero())
	})

	It("shuts down cleanly with idle workers", func() {
		pool.Start()
		done := make(chan struct{})
		go func() {
			pool.Shutdown()
			close(done)
		}()
		Eventually(done, time.Second).Should(BeClosed())
	})
})

var _ = Describe("BackoffPolicy", func() {
	policy := tasks.BackoffPolicy{
		Base:        time.Minute,
		Cap:         10 * time.Minute,
		MaxAttempts: 5,
	}

	It("grows exponentially with up to half jitter", func() {
		for attempt, base := range map[int]time.Duration{
			1: time.Minute,
			2: 2 * time.Minute,
			3: 4 * time.Minute,
			4: 8 * time.Minute,
		} {
			delay := policy.Delay(attempt)
			Expect(delay).To(BeNumerically(">=", base))
			Expect(delay).To(BeNumerically("<=", base+base/2))
		}
	})

	It("caps the delay", func() {
		delay := policy.Delay(10)
		Expect(delay).To(BeNumerically(">=", 10*time.Minute))
		Expect(delay).To(BeNumerically("<=", 15*time.Minute))
	})

	It("treats attempts below one as the first attempt", func() {
		delay := policy.Delay(0)
		Expect(delay).To(BeNumerically(">=", time.Minute))
		Expect(delay).To(BeNumerically("<=", 90*time.Second))
	})
})
