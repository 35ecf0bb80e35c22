package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HandlerFunc executes one task type. Returning an error schedules a
// retry; handlers must tolerate duplicate invocation.
type HandlerFunc func(ctx context.Context, task *Task) error

// Broker is the queue surface the pool consumes. Dequeued tasks stay
// claimed until Ack; the pool acks after the handler returned, success
// or not, so only a worker crash leaves a claim behind for
// ReclaimStale.
type Broker interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	Ack(ctx context.Context, task *Task) error
	Retry(ctx context.Context, task *Task) error
	MoveDueRetries(ctx context.Context) error
	ReclaimStale(ctx context.Context) error
}

type worker struct {
	id         int
	workerPool chan chan *Task
	jobChannel chan *Task
	logger     *slog.Logger
}

func newWorker(id int, workerPool chan chan *Task, logger *slog.Logger) *worker {
	return &worker{
		id:         id,
		workerPool: workerPool,
		jobChannel: make(chan *Task),
		logger:     logger,
	}
}

func (w *worker) start(ctx context.Context, wg *sync.WaitGroup, process func(*Task)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.workerPool <- w.jobChannel

			select {
			case task := <-w.jobChannel:
				w.logger.Debug("worker processing task", "worker_id", w.id, "task_id", task.ID, "task_type", task.Type)
				process(task)
			case <-ctx.Done():
				w.logger.Debug("worker shutting down", "worker_id", w.id)
				return
			}
		}
	}()
}

// Config sizes the pool.
type Config struct {
	MaxWorkers   int
	JobQueueSize int
}

// Pool pulls tasks from the broker and dispatches them to a fixed set
// of workers. One extra goroutine moves due retries back onto the queue
// every few seconds.
type Pool struct {
	broker   Broker
	handlers map[string]HandlerFunc
	logger   *slog.Logger

	jobQueue   chan *Task
	workerPool chan chan *Task
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

func NewPool(broker Broker, config Config, logger *slog.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	return &Pool{
		broker:     broker,
		handlers:   make(map[string]HandlerFunc),
		logger:     logger,
		jobQueue:   make(chan *Task, jobQueueSize),
		workerPool: make(chan chan *Task, maxWorkers),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handle registers the handler for one task type. Must be called before
// Start.
func (p *Pool) Handle(taskType string, fn HandlerFunc) {
	p.handlers[taskType] = fn
}

func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			w := newWorker(i, p.workerPool, p.logger)
			w.start(p.ctx, &p.wg, p.process)
		}

		p.wg.Add(3)
		go p.consume()
		go p.dispatch()
		go p.moveRetries()

		p.logger.Info("task worker pool started",
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

// consume pulls from the broker into the in-process job queue.
func (p *Pool) consume() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		task, err := p.broker.Dequeue(p.ctx, 5*time.Second)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Error("broker dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		select {
		case p.jobQueue <- task:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) dispatch() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				jobChannel <- task
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) moveRetries() {
	defer p.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.broker.MoveDueRetries(p.ctx); err != nil && p.ctx.Err() == nil {
				p.logger.Error("retry sweep failed", "error", err)
			}
			if err := p.broker.ReclaimStale(p.ctx); err != nil && p.ctx.Err() == nil {
				p.logger.Error("stale claim sweep failed", "error", err)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) process(task *Task) {
	defer func() {
		if err := p.broker.Ack(context.Background(), task); err != nil {
			p.logger.Error("task ack failed", "task_id", task.ID, "error", err)
		}
	}()

	handler, ok := p.handlers[task.Type]
	if !ok {
		p.logger.Error("no handler for task type, dropping", "task_type", task.Type, "task_id", task.ID)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	if err := handler(ctx, task); err != nil {
		p.logger.Error("task failed", "task_id", task.ID, "task_type", task.Type, "attempts", task.Attempts, "error", err)
		if err := p.broker.Retry(context.Background(), task); err != nil {
			p.logger.Error("task retry scheduling failed", "task_id", task.ID, "error", err)
		}
	}
}

// Shutdown stops the pool and waits for in-flight tasks.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
