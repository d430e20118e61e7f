package mail

import (
	"sync"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
	"github.com/rNintendoSwitch/Parakarry/pkg/utils"
)

// Registry owns the "at most one open thread per recipient" invariant. The
// check-then-create window is closed with a per-recipient mutex on top of
// the store's open-recipient index; concurrent creates for one recipient
// serialize here and exactly one wins.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (r *Registry) recipientLock(recipientID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[recipientID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[recipientID] = l
	}
	return l
}

// FindOpenThread returns the open thread for a recipient, if one exists.
// No side effects.
func (r *Registry) FindOpenThread(recipientID string) (models.Thread, bool, error) {
	return store.FindOpenByRecipient(recipientID)
}

// CreateParams carries everything needed to persist a new thread.
type CreateParams struct {
	Recipient models.UserRef
	Creator   models.UserRef
	Kind      models.ThreadKind
	ChannelID string
	GuildID   string
	// TriggerMessageID is the platform id of the message that caused
	// creation; it seeds the thread id.
	TriggerMessageID string
	// InitialMessage, when set, becomes the first transcript entry.
	InitialMessage *models.Message
}

// CreateThread creates a new open thread for the recipient. Returns
// ErrAlreadyOpen when the invariant would be violated.
func (r *Registry) CreateThread(p CreateParams) (models.Thread, error) {
	l := r.recipientLock(p.Recipient.ID)
	l.Lock()
	defer l.Unlock()

	if _, open, err := store.FindOpenByRecipient(p.Recipient.ID); err != nil {
		return models.Thread{}, err
	} else if open {
		return models.Thread{}, ErrAlreadyOpen
	}

	now := r.now().UTC()
	th := models.Thread{
		ID:        utils.GenThreadID(p.TriggerMessageID, now),
		Open:      true,
		Kind:      p.Kind,
		CreatedTS: now.UnixNano(),
		ChannelID: p.ChannelID,
		GuildID:   p.GuildID,
		Recipient: p.Recipient,
		Creator:   p.Creator,
	}
	if err := store.CreateThread(th); err != nil {
		return models.Thread{}, err
	}
	if p.InitialMessage != nil {
		m := *p.InitialMessage
		if m.TS == 0 {
			m.TS = now.UnixNano()
		}
		if err := store.AppendMessage(th.ID, m); err != nil {
			// the thread exists without its first entry; roll back so the
			// caller can retry cleanly
			_ = store.DeleteThread(th.ID)
			return models.Thread{}, err
		}
	}
	return th, nil
}

// CloseThread marks a thread closed, stamping the closer and close time.
// Calling it on an already-closed thread returns ErrAlreadyClosed without
// touching the stored closer or close time.
func (r *Registry) CloseThread(threadID string, closer models.UserRef, reason string) (models.Thread, error) {
	th, err := store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}

	l := r.recipientLock(th.Recipient.ID)
	l.Lock()
	defer l.Unlock()

	// re-read under the lock; a concurrent close may have won
	th, err = store.GetThread(threadID)
	if err != nil {
		return models.Thread{}, err
	}
	if !th.Open {
		return th, ErrAlreadyClosed
	}
	closer.Mod = true
	th.Open = false
	th.ClosedTS = r.now().UTC().UnixNano()
	th.Closer = &closer
	th.CloseReason = reason
	if err := store.CloseThreadRecord(th); err != nil {
		return models.Thread{}, err
	}
	return th, nil
}
