// Package appeal implements ban-appeal decisions. Appeal threads cannot be
// closed through the generic close path; they end in an accept or deny
// decision which is persisted as its own record.
package appeal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
	"github.com/rNintendoSwitch/Parakarry/pkg/timeutil"
	"github.com/rNintendoSwitch/Parakarry/pkg/utils"
)

// ErrNotAppeal is returned when a decision targets a non-appeal thread.
var ErrNotAppeal = errors.New("thread is not a ban appeal")

const decisionPrefix = "pun:"

// Decision is the persisted outcome of a ban appeal.
type Decision struct {
	ID       string         `json:"id"`
	ThreadID string         `json:"thread_id"`
	UserID   string         `json:"user_id"`
	Verdict  string         `json:"verdict"` // "accepted" or "denied"
	Reason   string         `json:"reason,omitempty"`
	Decider  models.UserRef `json:"decider"`
	TS       int64          `json:"ts"`
	// NextAttemptTS is when a denied user may appeal again; 0 means the
	// denial is permanent.
	NextAttemptTS int64 `json:"next_attempt_ts,omitempty"`
}

// Service decides appeals against the relay engine.
type Service struct {
	engine *mail.Engine
	now    func() time.Time
}

func NewService(engine *mail.Engine) *Service {
	return &Service{engine: engine, now: time.Now}
}

func (s *Service) loadAppeal(threadID string) (models.Thread, error) {
	th, err := store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if th.Kind != models.KindBanAppeal {
		return models.Thread{}, ErrNotAppeal
	}
	if !th.Open {
		return models.Thread{}, mail.ErrAlreadyClosed
	}
	return th, nil
}

func (s *Service) record(d Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return store.SaveKey(decisionPrefix+d.ID, data)
}

// Accept lifts the ban: the user is told their appeal was approved and the
// thread closes with the decision on record.
func (s *Service) Accept(ctx context.Context, threadID string, decider models.UserRef, reason string) (Decision, error) {
	decider.Mod = true
	th, err := s.loadAppeal(threadID)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		ID:       utils.GenID(),
		ThreadID: th.ID,
		UserID:   th.Recipient.ID,
		Verdict:  "accepted",
		Reason:   reason,
		Decider:  decider,
		TS:       s.now().UTC().UnixNano(),
	}
	if err := s.record(d); err != nil {
		return Decision{}, err
	}

	note := "Your ban appeal has been **approved** and your ban has been lifted. You are welcome to rejoin the server."
	if _, err := s.engine.NotifyRecipient(ctx, th.ID, note); err != nil {
		// the decision stands either way; the user may already have left
		logger.Warn("appeal_decision_dm_failed", "thread", th.ID, "error", err)
	}
	if err := s.engine.CloseDecided(ctx, th.ID, decider, "Appeal accepted"); err != nil {
		return d, err
	}
	logger.Info("appeal_accepted", "thread", th.ID, "user", th.Recipient.ID, "decider", decider.ID)
	return d, nil
}

// Deny upholds the ban. nextAttempt uses the schedule-delay syntax
// ("1w2d3h4m5s") or a no-expiry sentinel ("permanent"/"forever") for a
// final denial.
func (s *Service) Deny(ctx context.Context, threadID string, decider models.UserRef, reason, nextAttempt string) (Decision, error) {
	decider.Mod = true
	th, err := s.loadAppeal(threadID)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		ID:       utils.GenID(),
		ThreadID: th.ID,
		UserID:   th.Recipient.ID,
		Verdict:  "denied",
		Reason:   reason,
		Decider:  decider,
		TS:       s.now().UTC().UnixNano(),
	}
	note := "Your ban appeal has been **denied**."
	if reason != "" {
		note += " Reason: " + reason
	}
	if timeutil.IsPermanent(nextAttempt) {
		note += " This decision is final; you may not appeal again."
	} else {
		dur, err := timeutil.ParseDuration(nextAttempt)
		if err != nil {
			return Decision{}, err
		}
		at := s.now().UTC().Add(dur)
		d.NextAttemptTS = at.UnixNano()
		note += fmt.Sprintf(" You may appeal again in %s.", timeutil.HumanizeDuration(dur))
	}
	if err := s.record(d); err != nil {
		return Decision{}, err
	}

	if _, err := s.engine.NotifyRecipient(ctx, th.ID, note); err != nil {
		logger.Warn("appeal_decision_dm_failed", "thread", th.ID, "error", err)
	}
	if err := s.engine.CloseDecided(ctx, th.ID, decider, "Appeal denied"); err != nil {
		return d, err
	}
	logger.Info("appeal_denied", "thread", th.ID, "user", th.Recipient.ID, "decider", decider.ID, "permanent", d.NextAttemptTS == 0)
	return d, nil
}

// DecisionsFor returns all recorded decisions for a user, oldest first.
func DecisionsFor(userID string) ([]Decision, error) {
	keys, err := store.ListKeys(decisionPrefix)
	if err != nil {
		return nil, err
	}
	var out []Decision
	for _, k := range keys {
		raw, err := store.GetKey(k)
		if err != nil {
			continue
		}
		var d Decision
		if err := json.Unmarshal(raw, &d); err != nil {
			logger.Warn("invalid_decision_record", "key", k, "error", err)
			continue
		}
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}
