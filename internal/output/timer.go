package output

import (
	"sync"
	"time"
)

type Trigger int

const (
	TimerTrigger Trigger = iota
	PingTrigger
)

func (t Trigger) String() string {
	switch t {
	case TimerTrigger:
		return "timer"
	case PingTrigger:
		return "ping"
	}
	return "unknown"
}

// Event asks the event loop to advance an output.
type Event struct {
	Output   string
	Source   Trigger
	Deadline time.Time
}

// Timer fires at absolute deadlines spaced by the switch duration. Each deadline is
// the previous one plus the duration, so time spent rendering does not accumulate.
type Timer struct {
	output string
	events chan<- Event

	mu       sync.Mutex
	duration time.Duration
	deadline time.Time
	reset    chan struct{}
	stop     chan struct{}
	once     sync.Once
	done     chan struct{}
}

func NewTimer(duration time.Duration, events chan<- Event, output string) *Timer {
	if duration <= 0 {
		duration = time.Second
	}

	t := &Timer{
		output:   output,
		events:   events,
		duration: duration,
		deadline: time.Now().Add(duration),
		reset:    make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.run()
	return t
}

// nextDeadline returns prev + d, skipping whole periods already in the past.
func nextDeadline(prev time.Time, d time.Duration, now time.Time) time.Time {
	next := prev.Add(d)
	if !next.After(now) {
		missed := now.Sub(next)/d + 1
		next = next.Add(missed * d)
	}
	return next
}

func (t *Timer) run() {
	defer close(t.done)

	timer := time.NewTimer(time.Until(t.Deadline()))
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-t.reset:
			timer.Reset(time.Until(t.Deadline()))
		case <-timer.C:
			t.mu.Lock()
			fired := t.deadline
			t.deadline = nextDeadline(fired, t.duration, time.Now())
			wait := time.Until(t.deadline)
			t.mu.Unlock()

			if !t.send(Event{Output: t.output, Source: TimerTrigger, Deadline: fired}) {
				return
			}
			timer.Reset(wait)
		}
	}
}

func (t *Timer) send(ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.stop:
		return false
	}
}

// Ping delivers an event now without moving the schedule.
func (t *Timer) Ping() {
	go t.send(Event{Output: t.output, Source: PingTrigger, Deadline: time.Now()})
}

// SetDuration restarts the schedule with a new period counted from now.
func (t *Timer) SetDuration(d time.Duration) {
	if d <= 0 {
		return
	}

	t.mu.Lock()
	t.duration = d
	t.deadline = time.Now().Add(d)
	t.mu.Unlock()

	select {
	case t.reset <- struct{}{}:
	default:
	}
}

func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

func (t *Timer) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Stop ends the timer goroutine. It is safe to call more than once.
func (t *Timer) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
