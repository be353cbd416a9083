package worker

import (
	"context"
	"image"
	"sync"

	"github.com/rs/zerolog"

	"select2speak/src/logutil"
	"select2speak/src/narrate"
)

// Narrator is the work a job performs.
type Narrator interface {
	Narrate(ctx context.Context, crop image.Image) narrate.Report
}

// ResultCallback is invoked on completion from a worker goroutine.
// The event loop should pass a closure that posts back into the event loop safely.
type ResultCallback func(narrate.Report)

// Pool is a fixed-size narration worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	narrator Narrator
	jobs     chan job
	wg       sync.WaitGroup
	log      zerolog.Logger
}

type job struct {
	ctx  context.Context
	crop image.Image
	cb   ResultCallback
}

// New creates a worker pool. Size defaults to 1 when size<=0, since speech
// is serialized anyway. Queue is 1 slot.
func New(n Narrator, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{narrator: n, jobs: make(chan job, 1), log: logutil.Component("worker")}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for j := range p.jobs {
				ev := p.log.Debug().Int("worker", id)
				if j.crop != nil {
					ev = ev.Int("width", j.crop.Bounds().Dx()).Int("height", j.crop.Bounds().Dy())
				}
				ev.Msg("narration started")
				rep := p.narrator.Narrate(j.ctx, j.crop)
				p.log.Debug().Int("worker", id).Int("spoken", rep.Spoken).Bool("stopped", rep.Stopped).Msg("narration finished")
				if j.cb != nil {
					j.cb(rep)
				}
			}
		}(i)
	}
}

// Submit enqueues a job if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, crop image.Image, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, crop: crop, cb: cb}:
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
