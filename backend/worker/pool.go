package worker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amandeep2102/vision-chat/backend/logger"
)

var (
	ErrPoolStopped = errors.New("worker pool is shutting down")
	ErrPoolBusy    = errors.New("worker pool is busy")
)

// Task is one unit of blocking work, e.g. a model call.
type Task func() (any, error)

type Job struct {
	Name       string
	task       Task
	enqueuedAt time.Time
	resultChan chan Result // buffered, the worker never blocks on it
}

type Result struct {
	Value          any
	Err            error
	WorkerID       int
	QueuedFor      time.Duration
	ProcessingTime time.Duration
	CompletedAt    time.Time
}

// Pool runs tasks on a fixed set of goroutines. With a single worker every
// task starts only after the previous one has returned.
type Pool struct {
	workers  int
	jobQueue chan Job
	wg       sync.WaitGroup
	stopChan chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool

	// Statistics
	activeJobs    int64
	completedJobs int64
	failedJobs    int64
	queuedJobs    int64
	rejectedJobs  int64
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Start spawns worker goroutines
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("Worker pool started with %d workers, queue capacity: %d", p.workers, cap(p.jobQueue))
}

// Stop lets queued jobs drain, then returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	close(p.stopChan)
	logger.Infof("Worker pool stopped")
}

// SubmitAndWait queues task and blocks until a worker has run it. A full
// queue is reported as ErrPoolBusy instead of blocking.
func (p *Pool) SubmitAndWait(name string, task Task) (Result, error) {
	job := Job{
		Name:       name,
		task:       task,
		enqueuedAt: time.Now(),
		resultChan: make(chan Result, 1),
	}
	if err := p.enqueue(job); err != nil {
		return Result{}, err
	}

	select {
	case result := <-job.resultChan:
		return result, nil
	case <-p.stopChan:
		select {
		case result := <-job.resultChan:
			return result, nil
		default:
		}
		return Result{}, fmt.Errorf("%w while processing %s", ErrPoolStopped, name)
	}
}

func (p *Pool) enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobQueue <- job:
		atomic.AddInt64(&p.queuedJobs, 1)
		logger.Debugf("Job queued: %s (queue size: %d/%d)", job.Name, len(p.jobQueue), cap(p.jobQueue))
		return nil
	default:
		atomic.AddInt64(&p.rejectedJobs, 1)
		return fmt.Errorf("%w: queue is full (%d/%d)", ErrPoolBusy, len(p.jobQueue), cap(p.jobQueue))
	}
}

// Worker goroutine processes jobs from queue
func (p *Pool) worker(workerID int) {
	defer p.wg.Done()
	logger.Debugf("Worker %d started", workerID)

	for job := range p.jobQueue {
		job.resultChan <- p.processJob(job, workerID)
	}

	logger.Debugf("Worker %d stopped", workerID)
}

func (p *Pool) processJob(job Job, workerID int) (result Result) {
	atomic.AddInt64(&p.activeJobs, 1)
	startTime := time.Now()
	result = Result{WorkerID: workerID, QueuedFor: startTime.Sub(job.enqueuedAt)}

	defer func() {
		atomic.AddInt64(&p.activeJobs, -1)
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		result.ProcessingTime = time.Since(startTime)
		result.CompletedAt = time.Now()
		if result.Err != nil {
			atomic.AddInt64(&p.failedJobs, 1)
			logger.Warnf("Worker %d: job %s failed after %s: %v", workerID, job.Name, result.ProcessingTime, result.Err)
			return
		}
		atomic.AddInt64(&p.completedJobs, 1)
		logger.Debugf("Worker %d completed %s in %s", workerID, job.Name, result.ProcessingTime)
	}()

	result.Value, result.Err = job.task()
	return result
}

// ============ Statistics ============

type Stats struct {
	Workers       int   `json:"workers"`
	QueueSize     int   `json:"queue_size"`
	QueueCapacity int   `json:"queue_capacity"`
	ActiveJobs    int64 `json:"active_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	QueuedJobs    int64 `json:"queued_jobs"`
	RejectedJobs  int64 `json:"rejected_jobs"`
}

func (p *Pool) GetStats() Stats {
	return Stats{
		Workers:       p.workers,
		QueueSize:     len(p.jobQueue),
		QueueCapacity: cap(p.jobQueue),
		ActiveJobs:    atomic.LoadInt64(&p.activeJobs),
		CompletedJobs: atomic.LoadInt64(&p.completedJobs),
		FailedJobs:    atomic.LoadInt64(&p.failedJobs),
		QueuedJobs:    atomic.LoadInt64(&p.queuedJobs),
		RejectedJobs:  atomic.LoadInt64(&p.rejectedJobs),
	}
}
