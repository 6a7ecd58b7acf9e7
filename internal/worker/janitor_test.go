package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	blobmem "moneybook/internal/blob/memory"
	"moneybook/internal/storage/memory"
)

type flakyBlobs struct {
	*blobmem.Store
	failKeys map[string]bool
}

func (f *flakyBlobs) Delete(ctx context.Context, key string) error {
	if f.failKeys[key] {
		return errors.New("bucket unavailable")
	}
	return f.Store.Delete(ctx, key)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, time.Minute},
		{0, time.Minute},
		{1, 2 * time.Minute},
		{3, 8 * time.Minute},
		{5, 32 * time.Minute},
		{6, time.Hour},
		{40, time.Hour},
	}
	for _, tt := range tests {
		if got := RetryDelay(tt.attempts); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestBlobJanitor_RunOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	blobs := &flakyBlobs{Store: blobmem.New(""), failKeys: map[string]bool{"bad.png": true}}

	for _, k := range []string{"good.png", "bad.png"} {
		if err := blobs.Put(ctx, k, "image/png", strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
		if err := store.EnqueueOrphan(ctx, k, "test"); err != nil {
			t.Fatal(err)
		}
	}

	j := NewBlobJanitor(store, blobs, 10, nil)
	now := time.Now().Add(time.Second)
	j.now = func() time.Time { return now }

	deleted, rescheduled, err := j.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if deleted != 1 || rescheduled != 1 {
		t.Fatalf("deleted=%d rescheduled=%d, want 1 and 1", deleted, rescheduled)
	}
	if blobs.Has("good.png") {
		t.Fatal("good.png should be deleted")
	}

	orphans := store.Orphans()
	if len(orphans) != 1 || orphans[0].BlobKey != "bad.png" {
		t.Fatalf("remaining orphans = %+v", orphans)
	}
	if orphans[0].Attempts != 1 || orphans[0].LastError != "bucket unavailable" {
		t.Fatalf("failure not recorded: %+v", orphans[0])
	}
	if !orphans[0].NextAttemptAt.Equal(now.Add(time.Minute).UTC()) {
		t.Fatalf("next attempt = %v, want %v", orphans[0].NextAttemptAt, now.Add(time.Minute))
	}

	// not due yet
	deleted, rescheduled, _ = j.RunOnce(ctx)
	if deleted != 0 || rescheduled != 0 {
		t.Fatal("rescheduled orphan must wait for its backoff")
	}

	// storage recovers
	delete(blobs.failKeys, "bad.png")
	now = now.Add(2 * time.Minute)
	deleted, _, _ = j.RunOnce(ctx)
	if deleted != 1 || len(store.Orphans()) != 0 || blobs.Has("bad.png") {
		t.Fatal("orphan should be cleared once the delete succeeds")
	}
}

func TestBlobJanitor_BatchSize(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for i := 0; i < 5; i++ {
		_ = store.EnqueueOrphan(ctx, "k"+string(rune('a'+i)), "test")
	}
	j := NewBlobJanitor(store, blobmem.New(""), 2, nil)
	j.now = func() time.Time { return time.Now().Add(time.Second) }

	deleted, _, err := j.RunOnce(ctx)
	if err != nil || deleted != 2 {
		t.Fatalf("deleted=%d err=%v, want 2", deleted, err)
	}
	if len(store.Orphans()) != 3 {
		t.Fatalf("remaining = %d, want 3", len(store.Orphans()))
	}
}

func TestBlobJanitor_Run(t *testing.T) {
	j := NewBlobJanitor(memory.NewStore(), blobmem.New(""), 1, nil)

	if err := j.Run(context.Background(), "not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx, "@every 1h") }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"@every 1m", "*/5 * * * *", "@hourly"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Errorf("ValidateSchedule(%q) = %v", ok, err)
		}
	}
	if err := ValidateSchedule("every minute"); err == nil {
		t.Error("expected error")
	}
}

