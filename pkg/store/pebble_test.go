package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/models"
)

func setup(t *testing.T) {
	t.Helper()
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func mkThread(id, recipient, channel string) models.Thread {
	return models.Thread{
		ID:        id,
		Open:      true,
		Kind:      models.KindUser,
		CreatedTS: time.Now().UTC().UnixNano(),
		ChannelID: channel,
		GuildID:   "g1",
		Recipient: models.UserRef{ID: recipient, Name: "user-" + recipient},
		Creator:   models.UserRef{ID: recipient, Name: "user-" + recipient},
	}
}

func TestCreateAndGetThread(t *testing.T) {
	setup(t)
	th := mkThread("t1", "u1", "c1")
	if err := CreateThread(th); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	got, err := GetThread("t1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got.ID != "t1" || !got.Open || got.Recipient.ID != "u1" {
		t.Fatalf("unexpected thread: %+v", got)
	}
	if _, err := GetThread("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestOpenRecipientIndexBlocksSecondThread(t *testing.T) {
	setup(t)
	if err := CreateThread(mkThread("t1", "u1", "c1")); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := CreateThread(mkThread("t2", "u1", "c2")); err == nil {
		t.Fatalf("second open thread for same recipient was allowed")
	}
	th, ok, err := FindOpenByRecipient("u1")
	if err != nil || !ok {
		t.Fatalf("FindOpenByRecipient: ok=%v err=%v", ok, err)
	}
	if th.ID != "t1" {
		t.Fatalf("open thread = %s, want t1", th.ID)
	}
}

func TestCloseThreadRecordFreesRecipient(t *testing.T) {
	setup(t)
	th := mkThread("t1", "u1", "c1")
	if err := CreateThread(th); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	closer := models.UserRef{ID: "m1", Name: "mod", Mod: true}
	th.Open = false
	th.ClosedTS = time.Now().UTC().UnixNano()
	th.Closer = &closer
	if err := CloseThreadRecord(th); err != nil {
		t.Fatalf("CloseThreadRecord: %v", err)
	}
	if _, ok, _ := FindOpenByRecipient("u1"); ok {
		t.Fatalf("recipient still has an open thread after close")
	}
	// closed threads stay findable by channel
	got, ok, err := FindByChannel("c1")
	if err != nil || !ok {
		t.Fatalf("FindByChannel after close: ok=%v err=%v", ok, err)
	}
	if got.Open || got.Closer == nil || got.Closer.ID != "m1" {
		t.Fatalf("closed thread not stamped: %+v", got)
	}
	// a second thread for the same recipient is allowed now
	if err := CreateThread(mkThread("t2", "u1", "c2")); err != nil {
		t.Fatalf("create after close: %v", err)
	}
}

func TestAppendPreservesInsertionOrder(t *testing.T) {
	setup(t)
	if err := CreateThread(mkThread("t1", "u1", "c1")); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	for i := 0; i < 20; i++ {
		msg := models.Message{
			Type:    models.TypeThreadMessage,
			Content: fmt.Sprintf("msg-%02d", i),
			Author:  models.UserRef{ID: "u1"},
		}
		if err := AppendMessage("t1", msg); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}
	msgs, err := ListMessages("t1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 20 {
		t.Fatalf("got %d messages, want 20", len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("msg-%02d", i); m.Content != want {
			t.Fatalf("position %d = %q, want %q", i, m.Content, want)
		}
	}
	tail, err := ListMessages("t1", 5)
	if err != nil {
		t.Fatalf("ListMessages tail: %v", err)
	}
	if len(tail) != 5 || tail[0].Content != "msg-15" {
		t.Fatalf("tail wrong: %+v", tail)
	}
	n, err := CountMessages("t1")
	if err != nil || n != 20 {
		t.Fatalf("CountMessages = %d, %v", n, err)
	}
}

func TestAppendToUnknownThread(t *testing.T) {
	setup(t)
	err := AppendMessage("nope", models.Message{Content: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListThreadsByRecipientNewestFirst(t *testing.T) {
	setup(t)
	for i := 0; i < 3; i++ {
		th := mkThread(fmt.Sprintf("t%d", i), "u1", fmt.Sprintf("c%d", i))
		th.CreatedTS = int64(1000 + i)
		if err := CreateThread(th); err != nil {
			t.Fatalf("CreateThread %d: %v", i, err)
		}
		th.Open = false
		th.ClosedTS = int64(2000 + i)
		if err := CloseThreadRecord(th); err != nil {
			t.Fatalf("CloseThreadRecord %d: %v", i, err)
		}
	}
	all, err := ListThreadsByRecipient("u1", false)
	if err != nil {
		t.Fatalf("ListThreadsByRecipient: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t2" || all[2].ID != "t0" {
		t.Fatalf("order wrong: %+v", all)
	}
	n, err := CountThreadsForRecipient("u1")
	if err != nil || n != 3 {
		t.Fatalf("CountThreadsForRecipient = %d, %v", n, err)
	}
	open, err := ListThreadsByRecipient("u1", true)
	if err != nil || len(open) != 0 {
		t.Fatalf("openOnly returned %d threads", len(open))
	}
}

func TestDeleteThreadRemovesEverything(t *testing.T) {
	setup(t)
	if err := CreateThread(mkThread("t1", "u1", "c1")); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := AppendMessage("t1", models.Message{Content: "x", Author: models.UserRef{ID: "u1"}}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := DeleteThread("t1"); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}
	if _, err := GetThread("t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("thread still present: %v", err)
	}
	if _, ok, _ := FindOpenByRecipient("u1"); ok {
		t.Fatalf("open index not cleaned up")
	}
	if _, ok, _ := FindByChannel("c1"); ok {
		t.Fatalf("channel index not cleaned up")
	}
	if n, _ := CountThreadsForRecipient("u1"); n != 0 {
		t.Fatalf("creation index not cleaned up: %d", n)
	}
}

func TestSaveGetListKeys(t *testing.T) {
	setup(t)
	if err := SaveKey("pun:a", []byte("1")); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if err := SaveKey("pun:b", []byte("2")); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	v, err := GetKey("pun:a")
	if err != nil || string(v) != "1" {
		t.Fatalf("GetKey = %q, %v", v, err)
	}
	keys, err := ListKeys("pun:")
	if err != nil || len(keys) != 2 {
		t.Fatalf("ListKeys = %v, %v", keys, err)
	}
	if _, err := GetKey("pun:missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
