package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
)

// ErrNotFound is returned when a thread (or key) does not exist.
var ErrNotFound = errors.New("thread not found")

var db *pebble.DB
var dbPath string

// seq reduces key collisions when multiple messages share the same
// nanosecond timestamp.
var seq uint64

// Key layout:
//
//	thread:<threadID>:meta                    -> Thread JSON
//	thread:<threadID>:msg:<padded-ns>-<seq>   -> Message JSON (append-only)
//	open:recipient:<recipientID>              -> threadID (unique open-thread index)
//	channel:<channelID>                       -> threadID
//	recipient:<recipientID>:thread:<padded-ns> -> threadID (creation-time index)
func threadMetaKey(id string) []byte  { return []byte("thread:" + id + ":meta") }
func msgPrefix(id string) []byte      { return []byte("thread:" + id + ":msg:") }
func openKey(recipient string) []byte { return []byte("open:recipient:" + recipient) }
func channelKey(channel string) []byte {
	return []byte("channel:" + channel)
}
func recipientPrefix(recipient string) []byte {
	return []byte("recipient:" + recipient + ":thread:")
}

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpened() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// CreateThread persists a new thread record together with its open-recipient,
// channel, and creation-time index entries in a single atomic batch. The
// caller is responsible for serializing creates per recipient; the open-index
// check here is a backstop, not the primary lock.
func CreateThread(th models.Thread) error {
	if db == nil {
		return notOpened()
	}
	if _, ok, err := FindOpenByRecipient(th.Recipient.ID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("open thread already exists for recipient %s", th.Recipient.ID)
	}
	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(threadMetaKey(th.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(openKey(th.Recipient.ID), []byte(th.ID), nil); err != nil {
		return err
	}
	if err := b.Set(channelKey(th.ChannelID), []byte(th.ID), nil); err != nil {
		return err
	}
	idxKey := fmt.Sprintf("%s%020d", recipientPrefix(th.Recipient.ID), th.CreatedTS)
	if err := b.Set([]byte(idxKey), []byte(th.ID), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("create_thread_failed", "thread", th.ID, "error", err)
		return err
	}
	threadsOpened.Inc()
	logger.Info("thread_created", "thread", th.ID, "recipient", th.Recipient.ID, "kind", string(th.Kind))
	return nil
}

// GetThread returns the stored thread record for a given thread ID.
func GetThread(threadID string) (models.Thread, error) {
	var th models.Thread
	if db == nil {
		return th, notOpened()
	}
	v, closer, err := db.Get(threadMetaKey(threadID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return th, ErrNotFound
		}
		return th, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &th); err != nil {
		return th, fmt.Errorf("invalid thread record %s: %w", threadID, err)
	}
	return th, nil
}

// CloseThreadRecord overwrites the thread metadata with the closed state and
// removes the open-recipient index entry atomically. The channel and
// creation-time indexes stay so closed threads remain findable.
func CloseThreadRecord(th models.Thread) error {
	if db == nil {
		return notOpened()
	}
	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("failed to marshal thread: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set(threadMetaKey(th.ID), data, nil); err != nil {
		return err
	}
	if err := b.Delete(openKey(th.Recipient.ID), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("close_thread_failed", "thread", th.ID, "error", err)
		return err
	}
	threadsClosed.Inc()
	logger.Info("thread_closed", "thread", th.ID, "recipient", th.Recipient.ID)
	return nil
}

// AppendMessage appends a message to a thread under a sortable timestamp
// key. Prior entries are never touched, so the log cannot shrink or
// reorder. Returns ErrNotFound if the thread record does not exist.
func AppendMessage(threadID string, msg models.Message) error {
	if db == nil {
		return notOpened()
	}
	if _, err := GetThread(threadID); err != nil {
		return err
	}
	ts := time.Now().UTC().UnixNano()
	if msg.TS == 0 {
		msg.TS = ts
	}
	msg.Thread = threadID
	s := atomic.AddUint64(&seq, 1)
	key := fmt.Sprintf("%s%020d-%06d", msgPrefix(threadID), ts, s)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		logger.Error("append_message_failed", "thread", threadID, "key", key, "error", err)
		return err
	}
	messagesAppended.WithLabelValues(string(msg.Type)).Inc()
	logger.Debug("message_appended", "thread", threadID, "type", string(msg.Type), "author", msg.Author.ID)
	return nil
}

// ListMessages returns all messages for a thread in insertion order. An
// optional limit keeps only the most recent n entries.
func ListMessages(threadID string, limit ...int) ([]models.Message, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := msgPrefix(threadID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message record under %s: %w", string(iter.Key()), err)
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if len(limit) > 0 && limit[0] > 0 && limit[0] < len(out) {
		out = out[len(out)-limit[0]:]
	}
	return out, nil
}

// CountMessages returns the number of transcript entries for a thread.
func CountMessages(threadID string) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	prefix := msgPrefix(threadID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		n++
	}
	return n, iter.Error()
}

func lookupIndex(key []byte) (models.Thread, bool, error) {
	v, closer, err := db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.Thread{}, false, nil
		}
		return models.Thread{}, false, err
	}
	id := string(v)
	closer.Close()
	th, err := GetThread(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// dangling index entry; treat as absent
			logger.Warn("dangling_index_entry", "key", string(key), "thread", id)
			return models.Thread{}, false, nil
		}
		return models.Thread{}, false, err
	}
	return th, true, nil
}

// FindOpenByRecipient returns the single open thread for a recipient, if any.
func FindOpenByRecipient(recipientID string) (models.Thread, bool, error) {
	if db == nil {
		return models.Thread{}, false, notOpened()
	}
	return lookupIndex(openKey(recipientID))
}

// FindByChannel returns the thread bound to a channel, open or closed.
func FindByChannel(channelID string) (models.Thread, bool, error) {
	if db == nil {
		return models.Thread{}, false, notOpened()
	}
	return lookupIndex(channelKey(channelID))
}

// ListThreadsByRecipient returns all threads ever opened for a recipient,
// newest first. When openOnly is set, closed threads are filtered out.
func ListThreadsByRecipient(recipientID string, openOnly bool) ([]models.Thread, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := recipientPrefix(recipientID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var ids []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		ids = append(ids, string(iter.Value()))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	out := make([]models.Thread, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		th, err := GetThread(ids[i])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if openOnly && !th.Open {
			continue
		}
		out = append(out, th)
	}
	return out, nil
}

// CountThreadsForRecipient reports how many threads have ever been opened
// for a recipient (used for the "N previous threads" notice).
func CountThreadsForRecipient(recipientID string) (int, error) {
	if db == nil {
		return 0, notOpened()
	}
	prefix := recipientPrefix(recipientID)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		n++
	}
	return n, iter.Error()
}

// ListThreads returns all saved thread records.
func ListThreads() ([]models.Thread, error) {
	if db == nil {
		return nil, notOpened()
	}
	prefix := []byte("thread:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Thread
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !bytes.HasSuffix(iter.Key(), []byte(":meta")) {
			continue
		}
		var th models.Thread
		if err := json.Unmarshal(iter.Value(), &th); err != nil {
			continue
		}
		out = append(out, th)
	}
	return out, iter.Error()
}

// DeleteThread removes a thread record, its transcript, and all index
// entries. Used for cleanup-on-failure during creation and by retention.
func DeleteThread(threadID string) error {
	if db == nil {
		return notOpened()
	}
	th, err := GetThread(threadID)
	if err != nil {
		return err
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Delete(threadMetaKey(threadID), nil); err != nil {
		return err
	}
	if err := b.DeleteRange(msgPrefix(threadID), append(msgPrefix(threadID), 0xff), nil); err != nil {
		return err
	}
	if th.Open {
		if err := b.Delete(openKey(th.Recipient.ID), nil); err != nil {
			return err
		}
	}
	if err := b.Delete(channelKey(th.ChannelID), nil); err != nil {
		return err
	}
	idxKey := fmt.Sprintf("%s%020d", recipientPrefix(th.Recipient.ID), th.CreatedTS)
	if err := b.Delete([]byte(idxKey), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		logger.Error("delete_thread_failed", "thread", threadID, "error", err)
		return err
	}
	logger.Info("thread_deleted", "thread", threadID)
	return nil
}

// SaveKey stores an arbitrary key/value pair. Callers should pick a safe
// namespace (e.g. "pun:").
func SaveKey(key string, value []byte) error {
	if db == nil {
		return notOpened()
	}
	return db.Set([]byte(key), value, pebble.Sync)
}

// GetKey returns the raw value for the given key.
func GetKey(key string) ([]byte, error) {
	if db == nil {
		return nil, notOpened()
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

// ListKeys returns all keys that start with the given prefix.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, notOpened()
	}
	pfx := []byte(prefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
		if len(pfx) > 0 && !bytes.HasPrefix(iter.Key(), pfx) {
			break
		}
		out = append(out, string(append([]byte(nil), iter.Key()...)))
	}
	return out, iter.Error()
}

// DBIter returns a raw Pebble iterator for low-level tooling. Caller must
// close the iterator when done.
func DBIter() (*pebble.Iterator, error) {
	if db == nil {
		return nil, notOpened()
	}
	return db.NewIter(&pebble.IterOptions{})
}
