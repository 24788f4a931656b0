package pose

import (
	"context"
	"sync"
)

// Script is a Source that replays queued samples, repeating the last one
// when the queue runs dry. Used for headless runs and tests.
type Script struct {
	mu     sync.Mutex
	queue  []Sample
	last   Sample
	err    error
	closed bool
}

func NewScript(samples ...Sample) *Script {
	return &Script{queue: samples}
}

// Push appends samples to replay.
func (s *Script) Push(samples ...Sample) {
	s.mu.Lock()
	s.queue = append(s.queue, samples...)
	s.mu.Unlock()
}

// Fail makes every following Sample call return err.
func (s *Script) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Script) Sample(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Sample{}, s.err
	}
	if len(s.queue) > 0 {
		s.last = s.queue[0]
		s.queue = s.queue[1:]
	}
	return s.last, nil
}

func (s *Script) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
