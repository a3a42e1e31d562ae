package retention

import (
	"path/filepath"
	"testing"
	"time"

	"echoclub/pkg/logger"
	"echoclub/pkg/models"
	"echoclub/pkg/store"
)

func TestRunOncePurgesOldMessages(t *testing.T) {
	logger.Init()
	dbdir := filepath.Join(t.TempDir(), "db")
	if err := store.Open(dbdir); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	for _, text := range []string{"old1", "old2", "old3"} {
		if _, err := store.AppendMessage(models.Message{Text: text, AuthorID: "u1", AuthorName: "alice"}); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	sub, err := store.SubscribeMessages()
	if err != nil {
		t.Fatalf("SubscribeMessages: %v", err)
	}
	defer sub.Cancel()
	<-sub.C // initial snapshot

	// Zero window: everything written so far is past the cutoff.
	if err := RunOnce(0); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	msgs, err := store.ListMessages()
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected purge to empty the collection, got %d", len(msgs))
	}

	// Subscribers observe the purge through the normal snapshot path.
	select {
	case snap := <-sub.C:
		if len(snap.Messages) != 0 {
			t.Fatalf("expected empty snapshot after purge, got %d", len(snap.Messages))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot delivered after purge")
	}
}

func TestRunOnceKeepsRecentMessages(t *testing.T) {
	logger.Init()
	dbdir := filepath.Join(t.TempDir(), "db")
	if err := store.Open(dbdir); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.AppendMessage(models.Message{Text: "fresh", AuthorID: "u1", AuthorName: "alice"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := RunOnce(24 * time.Hour); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	msgs, _ := store.ListMessages()
	if len(msgs) != 1 {
		t.Fatalf("recent message must survive a 24h window, got %d", len(msgs))
	}
}
