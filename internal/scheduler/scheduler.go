// Package scheduler runs a BatchProcessor on a fixed interval and lets the
// HTTP layer pause and resume it.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// BatchProcessor does one unit of periodic work.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context) error
}

// SchedulerService is the control surface of a scheduler. Start and Stop
// return once the loop has acknowledged them.
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool
}

const (
	DefaultInterval     = 5 * time.Second
	DefaultBatchTimeout = 30 * time.Second
)

// controlTimeout bounds how long Start and Stop wait on the loop.
const controlTimeout = 2 * time.Second

var (
	ErrNotResponding = errors.New("scheduler: control loop not responding")
	ErrNoAck         = errors.New("scheduler: acknowledgement timeout")
)

type controlOp int

const (
	opStart controlOp = iota
	opStop
	opStatus
)

type controlMsg struct {
	op   controlOp
	resp chan bool
}

// schedulerService keeps all of its state inside the loop goroutine.
type schedulerService struct {
	processor    BatchProcessor
	interval     time.Duration
	batchTimeout time.Duration
	ctrl         chan controlMsg
	log          zerolog.Logger
}

// NewSchedulerService starts the control loop in the stopped state.
// Non-positive durations fall back to the defaults.
func NewSchedulerService(p BatchProcessor, interval, batchTimeout time.Duration, log zerolog.Logger) SchedulerService {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}

	s := &schedulerService{
		processor:    p,
		interval:     interval,
		batchTimeout: batchTimeout,
		ctrl:         make(chan controlMsg),
		log:          log.With().Str("component", "scheduler").Logger(),
	}
	go s.loop()
	return s
}

func (s *schedulerService) Start() error {
	return s.send(opStart)
}

// Stop pauses the scheduler. A batch in progress is allowed to finish
// first.
func (s *schedulerService) Stop() error {
	return s.send(opStop)
}

func (s *schedulerService) send(op controlOp) error {
	resp := make(chan bool, 1)

	select {
	case s.ctrl <- controlMsg{op: op, resp: resp}:
	case <-time.After(controlTimeout):
		return ErrNotResponding
	}

	select {
	case <-resp:
		return nil
	case <-time.After(controlTimeout):
		return ErrNoAck
	}
}

// IsRunning reports whether ticks are being processed.
func (s *schedulerService) IsRunning() bool {
	resp := make(chan bool, 1)
	s.ctrl <- controlMsg{op: opStatus, resp: resp}
	return <-resp
}

func (s *schedulerService) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	running := false

	for {
		select {
		case msg := <-s.ctrl:
			switch msg.op {
			case opStart:
				if !running {
					s.log.Info().Dur("interval", s.interval).Dur("batch_timeout", s.batchTimeout).Msg("started")
				}
				running = true
				msg.resp <- true

			case opStop:
				if running {
					s.log.Info().Msg("stopped")
				}
				running = false
				msg.resp <- true

			case opStatus:
				msg.resp <- running
			}

		case <-ticker.C:
			if !running {
				continue
			}
			s.runBatch()
		}
	}
}

// runBatch blocks the loop, so a Stop sent mid-batch is only picked up
// once the batch returns.
func (s *schedulerService) runBatch() {
	ctx, cancel := context.WithTimeout(context.Background(), s.batchTimeout)
	defer cancel()

	start := time.Now()
	if err := s.processor.ProcessBatch(ctx); err != nil {
		s.log.Error().Err(err).Msg("batch failed")
		return
	}
	s.log.Debug().Dur("took", time.Since(start)).Msg("batch completed")
}
