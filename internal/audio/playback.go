package audio

import (
	"sync"
	"time"
)

// Sink receives decoded buffers for output. The real implementation is
// Speaker; tests substitute a recording sink.
type Sink interface {
	Write(buf *Buffer)
	Close() error
}

type scheduledBuffer struct {
	start time.Duration
	buf   *Buffer
}

// Scheduler serializes inbound audio buffers onto a single output timeline.
// It keeps a monotonically non-decreasing cursor for the next start position
// so chunks that arrive in bursts play back-to-back without gaps or overlap.
type Scheduler struct {
	sink Sink
	now  func() time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	cursor time.Duration
	queue  []scheduledBuffer
	closed bool
}

// NewScheduler creates a scheduler writing to sink and starts its playback
// loop. The output timeline starts at zero when the scheduler is created.
func NewScheduler(sink Sink) *Scheduler {
	epoch := time.Now()
	s := newScheduler(sink, func() time.Duration { return time.Since(epoch) })
	go s.run()
	return s
}

func newScheduler(sink Sink, now func() time.Duration) *Scheduler {
	s := &Scheduler{sink: sink, now: now}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ScheduleChunk decodes a transport chunk at the playback rate and schedules
// it. A malformed chunk is an error for the caller to log and drop; it does
// not disturb the timeline.
func (s *Scheduler) ScheduleChunk(chunk string) error {
	buf, err := DecodeFrame(chunk, PlaybackSampleRate)
	if err != nil {
		return err
	}
	s.Schedule(buf)
	return nil
}

// Schedule queues a buffer to begin at max(cursor, current output time) and
// advances the cursor by the buffer's duration.
func (s *Scheduler) Schedule(buf *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	start := s.cursor
	if now := s.now(); now > start {
		start = now
	}
	s.queue = append(s.queue, scheduledBuffer{start: start, buf: buf})
	s.cursor = start + buf.Duration()
	s.cond.Signal()
}

// Interrupt resets the cursor to the current output time and discards every
// queued buffer that has not started. Audio already handed to the sink is
// not stopped.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = s.now()
	s.queue = nil
}

// Close stops the playback loop, hands any still-queued buffers to the sink
// in schedule order and closes the sink. Unlike Interrupt, closing does not
// drop audio the model already produced. Safe to call more than once.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, item := range pending {
		s.sink.Write(item.buf)
	}
	return s.sink.Close()
}

func (s *Scheduler) run() {
	s.mu.Lock()
	for {
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		item := s.queue[0]
		if wait := item.start - s.now(); wait > 0 {
			s.mu.Unlock()
			time.Sleep(wait)
			s.mu.Lock()
			// Re-check: an interruption may have flushed the queue while
			// we were asleep.
			continue
		}
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.sink.Write(item.buf)
		s.mu.Lock()
	}
}
