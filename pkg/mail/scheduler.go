package mail

import (
	"errors"
	"sync"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/timeutil"
)

// PendingClosure describes one outstanding delayed close.
type PendingClosure struct {
	ThreadID string
	FireAt   time.Time
	Closer   models.UserRef
}

type pendingEntry struct {
	PendingClosure
	timer *time.Timer
}

// ScheduleResult reports the timer now active after a Schedule call.
type ScheduleResult struct {
	FireAt time.Time
	// Replaced holds the closer whose earlier timer was displaced, so the
	// caller can tell staff whose intent is now active.
	Replaced *models.UserRef
}

// CloseFunc executes the actual closure when a timer fires. It must return
// ErrAlreadyClosed when the thread was closed through another path; the
// scheduler treats that race as benign.
type CloseFunc func(threadID string, closer models.UserRef) error

// Scheduler owns all pending close timers. State is in-process only; a
// restart drops pending closures by design (they were always advisory).
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry

	closeFn CloseFunc
	// replace controls the duplicate-schedule policy. Default true:
	// scheduling over a pending closure cancels it and reports the
	// displaced closer. When false, Schedule returns ErrAlreadyScheduled.
	replace bool
	now     func() time.Time
}

func NewScheduler(closeFn CloseFunc) *Scheduler {
	return &Scheduler{
		pending: make(map[string]*pendingEntry),
		closeFn: closeFn,
		replace: true,
		now:     time.Now,
	}
}

// SetReplacePolicy switches between replace-and-notify (true, default) and
// reject-with-ErrAlreadyScheduled (false).
func (s *Scheduler) SetReplacePolicy(replace bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace = replace
}

// Schedule parses delay ("1w2d3h4m5s" syntax) and arms a close timer for
// the thread. The no-expiry sentinels are not valid here.
func (s *Scheduler) Schedule(threadID, delay string, closer models.UserRef) (ScheduleResult, error) {
	if timeutil.IsPermanent(delay) {
		return ScheduleResult{}, ErrInvalidDuration
	}
	d, err := timeutil.ParseDuration(delay)
	if err != nil {
		return ScheduleResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res ScheduleResult
	if prev, ok := s.pending[threadID]; ok {
		if !s.replace {
			return ScheduleResult{}, ErrAlreadyScheduled
		}
		prev.timer.Stop()
		delete(s.pending, threadID)
		replaced := prev.Closer
		res.Replaced = &replaced
		logger.Info("pending_close_replaced", "thread", threadID, "old_closer", prev.Closer.ID, "new_closer", closer.ID)
	}

	fireAt := s.now().UTC().Add(d)
	entry := &pendingEntry{
		PendingClosure: PendingClosure{ThreadID: threadID, FireAt: fireAt, Closer: closer},
	}
	entry.timer = time.AfterFunc(d, func() { s.fire(threadID) })
	s.pending[threadID] = entry
	pendingClosures.Set(float64(len(s.pending)))
	res.FireAt = fireAt
	logger.Info("close_scheduled", "thread", threadID, "closer", closer.ID, "fire_at", fireAt)
	return res, nil
}

func (s *Scheduler) fire(threadID string) {
	s.mu.Lock()
	entry, ok := s.pending[threadID]
	if ok {
		delete(s.pending, threadID)
		pendingClosures.Set(float64(len(s.pending)))
	}
	s.mu.Unlock()
	if !ok {
		// canceled between timer fire and lock acquisition
		return
	}
	if err := s.closeFn(threadID, entry.Closer); err != nil {
		if errors.Is(err, ErrAlreadyClosed) || errors.Is(err, ErrThreadNotFound) {
			// closed through another path first; expected race, not a bug
			logger.Debug("scheduled_close_noop", "thread", threadID)
			return
		}
		logger.Error("scheduled_close_failed", "thread", threadID, "error", err)
	}
}

// Cancel stops the pending closure for a thread and releases its timer.
// Returns ErrNotScheduled when nothing is pending; callers that cancel on
// activity ignore that.
func (s *Scheduler) Cancel(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[threadID]
	if !ok {
		return ErrNotScheduled
	}
	entry.timer.Stop()
	delete(s.pending, threadID)
	pendingClosures.Set(float64(len(s.pending)))
	logger.Info("pending_close_canceled", "thread", threadID, "closer", entry.Closer.ID)
	return nil
}

// Pending reports the outstanding closure for a thread, if any.
func (s *Scheduler) Pending(threadID string) (PendingClosure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.pending[threadID]
	if !ok {
		return PendingClosure{}, false
	}
	return entry.PendingClosure, true
}

// Len returns the number of threads with a pending closure.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer. Used on shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.pending {
		entry.timer.Stop()
		delete(s.pending, id)
	}
	pendingClosures.Set(0)
}
