package worker

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"screenshotr/src/upload"
)

// ResultCallback is invoked on upload completion (from a worker goroutine).
// The event loop should pass a closure that posts back into the event loop safely.
type ResultCallback func(res upload.Result)

// Pool is a fixed-size upload worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	uploader upload.Uploader
	deadline time.Duration
	jobs     chan job
	wg       sync.WaitGroup
}

type job struct {
	ctx context.Context
	req upload.Request
	cb  ResultCallback
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue is 1 slot.
// Every job runs under deadline (30s when deadline<=0).
func New(size int, uploader upload.Uploader, deadline time.Duration) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	p := &Pool{uploader: uploader, deadline: deadline, jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(j)
			}
		}()
	}
}

func (p *Pool) run(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, p.deadline)
	defer cancel()

	start := time.Now()
	res := p.uploader.Upload(ctx, j.req)
	log.Printf("Worker: upload finished in %v ok=%v", time.Since(start), res.OK())
	if j.cb != nil {
		j.cb(res)
	}
}

// Submit enqueues an upload if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, req upload.Request, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, req: req, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
