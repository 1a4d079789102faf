package dock

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
)

// Backend identifies a scheduler implementation.
type Backend string

const (
	BackendPool   Backend = "pool"
	BackendSerial Backend = "serial"
)

// ErrUnknownBackend is returned when the name does not match a known backend.
var ErrUnknownBackend = errors.New("unknown scheduler backend")

var noopCleanup = func() {}

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "pool", "parallel", "cpu":
		return BackendPool
	case "serial", "sequential":
		return BackendSerial
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendPool, BackendSerial}
}

func parseBackend(name string) (Backend, error) {
	b := NormalizeBackend(name)
	for _, s := range SupportedBackends() {
		if b == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownBackend, name)
}

// Scheduler executes per-individual tasks of one generation. Do calls
// fn(i) for every i in [0, n) and returns once all calls have finished.
type Scheduler interface {
	Do(n int, fn func(i int))
}

// SerialScheduler runs tasks in the calling goroutine.
type SerialScheduler struct{}

// Do implements Scheduler.
func (SerialScheduler) Do(n int, fn func(i int)) {
	for i := 0; i < n; i++ {
		fn(i)
	}
}

// PoolScheduler runs tasks on goroutines bounded by a semaphore. A single
// PoolScheduler may be shared by concurrent runs; the bound then applies to
// all of them together.
type PoolScheduler struct {
	sem chan struct{}
}

// NewPoolScheduler returns a scheduler running at most workers tasks at once.
func NewPoolScheduler(workers int) *PoolScheduler {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &PoolScheduler{sem: make(chan struct{}, workers)}
}

// Workers returns the concurrency bound.
func (s *PoolScheduler) Workers() int { return cap(s.sem) }

// Do implements Scheduler.
func (s *PoolScheduler) Do(n int, fn func(i int)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		s.sem <- struct{}{}
		go func(i int) {
			defer func() {
				<-s.sem
				wg.Done()
			}()
			fn(i)
		}(i)
	}
	wg.Wait()
}

// NewScheduler constructs the requested scheduler and returns an optional cleanup hook.
func NewScheduler(name string, workers int) (Scheduler, func(), error) {
	backend, err := parseBackend(name)
	if err != nil {
		return nil, noopCleanup, err
	}

	switch backend {
	case BackendSerial:
		return SerialScheduler{}, noopCleanup, nil
	default:
		return NewPoolScheduler(workers), noopCleanup, nil
	}
}
