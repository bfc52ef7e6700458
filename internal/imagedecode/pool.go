package imagedecode

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrClosed = errors.New("decode pool is closed")

// DecodeFunc produces the pixels for a key.
type DecodeFunc func(path string, width, height int) (*Result, error)

// Pool decodes images on background workers. Requests are queued without blocking and
// the results are published on a channel the render thread drains once per frame.
// Decodes of the same key are collapsed, whether they come from a worker or from Load.
type Pool struct {
	workers  int
	requests chan Key
	results  chan *Result
	decode   DecodeFunc

	flight singleflight.Group

	mu      sync.Mutex
	pending map[Key]struct{}
	closed  bool

	decoded atomic.Int64

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewPool creates a pool with the given number of workers and queue depth.
func NewPool(workers, queue int) *Pool {
	return NewPoolWith(workers, queue, Decode)
}

func NewPoolWith(workers, queue int, decode DecodeFunc) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 16
	}
	return &Pool{
		workers:  workers,
		requests: make(chan Key, queue),
		results:  make(chan *Result, queue),
		decode:   decode,
		pending:  make(map[Key]struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		p.group.Go(func() error {
			return p.work(ctx)
		})
	}
	log.Debugf("started %d image decode workers", p.workers)
}

func (p *Pool) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-p.requests:
			res, err := p.do(key)

			p.mu.Lock()
			delete(p.pending, key)
			p.mu.Unlock()

			if err != nil {
				log.Errorf("failed to load %s: %v", key.Path, err)
				continue
			}

			select {
			case p.results <- res:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (p *Pool) do(key Key) (*Result, error) {
	v, err, _ := p.flight.Do(key.String(), func() (any, error) {
		p.decoded.Add(1)
		return p.decode(key.Path, key.Width, key.Height)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Request queues a key for background decoding. It returns false when the key is
// already queued, the queue is full or the pool is closed.
func (p *Pool) Request(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.pending[key]; ok {
		return false
	}

	select {
	case p.requests <- key:
		p.pending[key] = struct{}{}
		return true
	default:
		log.Warnf("decode queue full, dropping request for %s", key)
		return false
	}
}

// Load decodes key on the calling goroutine, or waits for a decode of the same key
// already running elsewhere.
func (p *Pool) Load(ctx context.Context, key Key) (*Result, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	ch := p.flight.DoChan(key.String(), func() (any, error) {
		p.decoded.Add(1)
		return p.decode(key.Path, key.Width, key.Height)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	}
}

func (p *Pool) Results() <-chan *Result {
	return p.results
}

// Pending reports whether key is queued or being decoded by a worker.
func (p *Pool) Pending(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[key]
	return ok
}

// Decoded is the number of decodes actually performed.
func (p *Pool) Decoded() int64 {
	return p.decoded.Load()
}

// Close stops the workers. Queued requests are dropped.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return p.group.Wait()
}
