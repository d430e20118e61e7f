package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rNintendoSwitch/Parakarry/pkg/config"
	"github.com/rNintendoSwitch/Parakarry/pkg/models"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
)

func setup(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func putThread(t *testing.T, id, recipient string, open bool, closedAgo time.Duration) {
	t.Helper()
	th := models.Thread{
		ID:        id,
		Open:      true,
		Kind:      models.KindUser,
		CreatedTS: time.Now().UTC().Add(-closedAgo - time.Hour).UnixNano(),
		ChannelID: "c-" + id,
		Recipient: models.UserRef{ID: recipient},
		Creator:   models.UserRef{ID: recipient},
	}
	if err := store.CreateThread(th); err != nil {
		t.Fatalf("CreateThread %s: %v", id, err)
	}
	if !open {
		th.Open = false
		th.ClosedTS = time.Now().UTC().Add(-closedAgo).UnixNano()
		if err := store.CloseThreadRecord(th); err != nil {
			t.Fatalf("CloseThreadRecord %s: %v", id, err)
		}
	}
}

func TestRunOncePurgesOldClosedOnly(t *testing.T) {
	setup(t)
	putThread(t, "old", "u1", false, 100*24*time.Hour)
	putThread(t, "recent", "u2", false, 24*time.Hour)
	putThread(t, "open", "u3", true, 0)

	cfg := &config.Config{}
	if err := RunOnce(context.Background(), cfg, 90*24*time.Hour); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if _, err := store.GetThread("old"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("old thread survived: %v", err)
	}
	if _, err := store.GetThread("recent"); err != nil {
		t.Fatalf("recent closed thread was purged: %v", err)
	}
	if _, err := store.GetThread("open"); err != nil {
		t.Fatalf("open thread was purged: %v", err)
	}
}

func TestRunOnceDryRunTouchesNothing(t *testing.T) {
	setup(t)
	putThread(t, "old", "u1", false, 100*24*time.Hour)

	cfg := &config.Config{}
	cfg.Retention.DryRun = true
	if err := RunOnce(context.Background(), cfg, 90*24*time.Hour); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := store.GetThread("old"); err != nil {
		t.Fatalf("dry run deleted a thread: %v", err)
	}
}

func TestStartRejectsShortPeriod(t *testing.T) {
	setup(t)
	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	cfg.Retention.Period = "1d"
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Fatalf("1d period below the 7d minimum was accepted")
	}
}

func TestStartRejectsBadCron(t *testing.T) {
	setup(t)
	cfg := &config.Config{}
	cfg.Retention.Enabled = true
	cfg.Retention.Period = "12w"
	cfg.Retention.Cron = "not a cron"
	if _, err := Start(context.Background(), cfg); err == nil {
		t.Fatalf("invalid cron accepted")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	cfg := &config.Config{}
	cancel, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
}
