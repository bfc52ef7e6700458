// Package jobserver decodes images on a single background goroutine and keeps the last
// few results in memory. Callers block on a condition variable until the image they
// asked for is ready, and a key is never decoded twice at the same time.
package jobserver

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/matjam/wayper/internal/imagedecode"
)

const DefaultCapacity = 5

var ErrDead = errors.New("job server is not running")

// Job is either an image to decode or the request to stop.
type Job struct {
	Key imagedecode.Key
	die bool
	// publish sends the result on Results as well
	publish bool
}

func ImageJob(key imagedecode.Key) Job {
	return Job{Key: key}
}

// Die stops the server once the jobs queued before it are done.
var Die = Job{die: true}

type Stats struct {
	Hits     uint64
	Misses   uint64
	Decoded  uint64
	Failed   uint64
	Evicted  uint64
	Resident int
}

type Server struct {
	capacity int
	decode   imagedecode.DecodeFunc

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Job
	inFlight map[imagedecode.Key]struct{}
	done     map[imagedecode.Key]*imagedecode.Result
	order    []imagedecode.Key
	failed   map[imagedecode.Key]error
	running  bool
	dead     bool
	stats    Stats

	results chan *imagedecode.Result
	exited  chan struct{}
}

func New(capacity int) *Server {
	return NewWith(capacity, imagedecode.Decode)
}

func NewWith(capacity int, decode imagedecode.DecodeFunc) *Server {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	s := &Server{
		capacity: capacity,
		decode:   decode,
		inFlight: make(map[imagedecode.Key]struct{}),
		done:     make(map[imagedecode.Key]*imagedecode.Result),
		failed:   make(map[imagedecode.Key]error),
		results:  make(chan *imagedecode.Result, capacity),
		exited:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start runs the decode goroutine. Calling it again has no effect.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.dead {
		return
	}
	s.running = true
	go s.run()
}

func (s *Server) run() {
	defer close(s.exited)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 {
			s.cond.Wait()
		}
		job := s.queue[0]
		s.queue = s.queue[1:]

		if job.die {
			s.dead = true
			for _, j := range s.queue {
				delete(s.inFlight, j.Key)
			}
			s.queue = nil
			s.cond.Broadcast()
			s.mu.Unlock()
			log.Debug("job server stopped")
			return
		}
		s.mu.Unlock()

		res, err := s.decode(job.Key.Path, job.Key.Width, job.Key.Height)

		s.mu.Lock()
		delete(s.inFlight, job.Key)
		if err != nil {
			log.Errorf("failed to decode %s: %v", job.Key.Path, err)
			s.failed[job.Key] = err
			s.stats.Failed++
		} else {
			s.store(job.Key, res)
			s.stats.Decoded++
		}
		s.cond.Broadcast()
		s.mu.Unlock()

		if err == nil && job.publish {
			select {
			case s.results <- res.Clone():
			default:
				log.Debug("result channel full, dropping", "key", job.Key)
			}
		}
	}
}

// store keeps res, evicting the oldest result when the server is at capacity.
func (s *Server) store(key imagedecode.Key, res *imagedecode.Result) {
	if _, ok := s.done[key]; !ok {
		for len(s.order) >= s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.done, oldest)
			s.stats.Evicted++
		}
		s.order = append(s.order, key)
	}
	s.done[key] = res
}

// enqueue must be called with mu held.
func (s *Server) enqueue(job Job) {
	if !job.die {
		s.inFlight[job.Key] = struct{}{}
	}
	s.queue = append(s.queue, job)
	s.cond.Broadcast()
}

// Submit queues a job. Image jobs already decoded or in flight are ignored. It
// reports whether the job was queued.
func (s *Server) Submit(job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dead {
		return false
	}
	if !job.die {
		if _, ok := s.done[job.Key]; ok {
			return false
		}
		if _, ok := s.inFlight[job.Key]; ok {
			return false
		}
		delete(s.failed, job.Key)
	}
	s.enqueue(job)
	return true
}

// GetJob returns a copy of the decoded image for key. A resident result returns at
// once, an in flight decode is waited for, anything else is submitted and then
// waited for.
func (s *Server) GetJob(ctx context.Context, key imagedecode.Key) (*imagedecode.Result, error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if res, ok := s.done[key]; ok {
		s.stats.Hits++
		return res.Clone(), nil
	}
	s.stats.Misses++

	if _, ok := s.inFlight[key]; !ok {
		if s.dead {
			return nil, ErrDead
		}
		delete(s.failed, key)
		s.enqueue(Job{Key: key})
	}

	for {
		if res, ok := s.done[key]; ok {
			return res.Clone(), nil
		}
		if err, ok := s.failed[key]; ok {
			return nil, err
		}
		if s.dead {
			return nil, ErrDead
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := s.inFlight[key]; !ok {
			// evicted before this waiter woke up
			s.enqueue(Job{Key: key})
		}
		s.cond.Wait()
	}
}

// Request queues a decode whose result is also published on Results.
func (s *Server) Request(key imagedecode.Key) bool {
	return s.Submit(Job{Key: key, publish: true})
}

// Load is GetJob.
func (s *Server) Load(ctx context.Context, key imagedecode.Key) (*imagedecode.Result, error) {
	return s.GetJob(ctx, key)
}

func (s *Server) Results() <-chan *imagedecode.Result {
	return s.results
}

func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Resident = len(s.done)
	return st
}

// Close submits Die and waits for the goroutine to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !s.Submit(Die) {
		return nil
	}
	if running {
		<-s.exited
	} else {
		s.mu.Lock()
		s.dead = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}
	return nil
}
