package utils

import (
	"sync"
	"time"
)

// WorkerPool runs submitted jobs on a bounded number of goroutines, retrying
// each failed job with a linear backoff before recording its final error.
type WorkerPool struct {
	jobQueue chan func() error
	wg       sync.WaitGroup
	retries  int
	delay    time.Duration

	mu   sync.Mutex
	errs []error
}

func NewWorkerPool(workers, retries int, delay time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &WorkerPool{
		jobQueue: make(chan func() error, workers*2),
		retries:  retries,
		delay:    delay,
	}
	for i := 0; i < workers; i++ {
		go pool.worker()
	}
	return pool
}

func (p *WorkerPool) worker() {
	for job := range p.jobQueue {
		var err error
		for attempt := 0; attempt <= p.retries; attempt++ {
			if err = job(); err == nil {
				break
			}
			if attempt < p.retries {
				time.Sleep(time.Duration(attempt+1) * p.delay)
			}
		}

		if err != nil {
			p.mu.Lock()
			p.errs = append(p.errs, err)
			p.mu.Unlock()
		}

		p.wg.Done()
	}
}

func (p *WorkerPool) Submit(job func() error) {
	p.wg.Add(1)
	p.jobQueue <- job
}

// Wait blocks until all submitted jobs have finished and shuts the pool
// down. The pool must not be reused afterwards.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
	close(p.jobQueue)
}

// Errors returns the final error of every job that exhausted its retries.
func (p *WorkerPool) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.errs...)
}
