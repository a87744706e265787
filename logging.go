package dispatch

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// logger wraps a zerolog.Logger behind the LoggingEnabled() controller
// hook: every call site checks it first, so a disabled logger costs one
// interface call and nothing else. Events are emitted only for the slow,
// occasional paths (growth, overflow, assignment, retirement, panics) —
// never from the push/pop/steal fast paths.
type logger struct {
	ctrl Controller
	zl   zerolog.Logger
}

// newLogger tags every line from this Core with a fresh correlation ID, so
// log output from several Core instances sharing one process (or one log
// aggregator) can still be told apart.
func newLogger(ctrl Controller) *logger {
	return &logger{
		ctrl: ctrl,
		zl: zerolog.New(os.Stderr).With().Timestamp().
			Str("component", "dispatch").
			Str("core_id", uuid.NewString()).
			Logger(),
	}
}

func (l *logger) enabled() bool {
	return l.ctrl != nil && l.ctrl.LoggingEnabled()
}

func (l *logger) localDequeGrew(workerID, newCapacity int) {
	if !l.enabled() {
		return
	}
	l.zl.Debug().Int("worker", workerID).Int("capacity", newCapacity).Msg("local deque grew")
}

func (l *logger) localDequeRebased(workerID int) {
	if !l.enabled() {
		return
	}
	l.zl.Debug().Int("worker", workerID).Msg("local deque indices rebased on tail overflow")
}

func (l *logger) assignmentChanged(workerID, queueIndex int) {
	if !l.enabled() {
		return
	}
	l.zl.Debug().Int("worker", workerID).Int("queue", queueIndex).Msg("worker assignment changed")
}

func (l *logger) workerRetired(workerID int) {
	if !l.enabled() {
		return
	}
	l.zl.Debug().Int("worker", workerID).Msg("worker retired")
}

func (l *logger) itemPanicked(workerID int, r any) {
	if !l.enabled() {
		return
	}
	l.zl.Error().Int("worker", workerID).Interface("panic", r).Msg("work item panicked")
}
