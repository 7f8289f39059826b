package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/silasm01/calendar-manager/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "calmanage.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBuffersUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := model.BufferKey{UID: "e1", Source: "family"}
	if err := s.SetBuffer(ctx, key, model.Buffer{BeforeMin: 10, AfterMin: 5}); err != nil {
		t.Fatalf("SetBuffer: %v", err)
	}
	// Same key again: update, not a second row.
	if err := s.SetBuffer(ctx, key, model.Buffer{BeforeMin: 20, AfterMin: 0}); err != nil {
		t.Fatalf("SetBuffer update: %v", err)
	}
	// Same UID under a different source is a distinct setting.
	other := model.BufferKey{UID: "e1", Source: "Ronja"}
	if err := s.SetBuffer(ctx, other, model.Buffer{BeforeMin: 1, AfterMin: 2}); err != nil {
		t.Fatalf("SetBuffer other source: %v", err)
	}

	buffers, err := s.AllBuffers(ctx)
	if err != nil {
		t.Fatalf("AllBuffers: %v", err)
	}
	if len(buffers) != 2 {
		t.Fatalf("want 2 buffer rows, got %d: %v", len(buffers), buffers)
	}
	if got := buffers[key]; got.BeforeMin != 20 || got.AfterMin != 0 {
		t.Errorf("upsert did not overwrite: %+v", got)
	}
	if got := buffers[other]; got.BeforeMin != 1 || got.AfterMin != 2 {
		t.Errorf("per-source buffer lost: %+v", got)
	}
}

func TestBuffersEmptySnapshot(t *testing.T) {
	s := openTestStore(t)
	buffers, err := s.AllBuffers(context.Background())
	if err != nil {
		t.Fatalf("AllBuffers: %v", err)
	}
	if len(buffers) != 0 {
		t.Fatalf("fresh store should have no buffers: %v", buffers)
	}
}

func TestPrivacyUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SetPrivacy(ctx, "e1", "family", Privacy{UseGenericTitle: true}); err != nil {
		t.Fatalf("SetPrivacy: %v", err)
	}
	if err := s.SetPrivacy(ctx, "e1", "family", Privacy{UseGenericDescription: true}); err != nil {
		t.Fatalf("SetPrivacy update: %v", err)
	}

	privacy, err := s.AllPrivacy(ctx)
	if err != nil {
		t.Fatalf("AllPrivacy: %v", err)
	}
	got, ok := privacy["e1"]
	if !ok {
		t.Fatal("privacy row missing")
	}
	if got.UseGenericTitle || !got.UseGenericDescription {
		t.Errorf("upsert did not overwrite: %+v", got)
	}
}

func TestIgnoredList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddIgnored(ctx, "e1"); err != nil {
		t.Fatalf("AddIgnored: %v", err)
	}
	// Already ignored: not an error.
	if err := s.AddIgnored(ctx, "e1"); err != nil {
		t.Fatalf("AddIgnored twice: %v", err)
	}
	if err := s.AddIgnored(ctx, ""); err == nil {
		t.Error("empty uid should be rejected")
	}

	uids, err := s.IgnoredUIDs(ctx)
	if err != nil {
		t.Fatalf("IgnoredUIDs: %v", err)
	}
	if len(uids) != 1 || uids[0] != "e1" {
		t.Fatalf("want [e1], got %v", uids)
	}

	if err := s.RemoveIgnored(ctx, "e1"); err != nil {
		t.Fatalf("RemoveIgnored: %v", err)
	}
	// Removing an absent uid is fine.
	if err := s.RemoveIgnored(ctx, "ghost"); err != nil {
		t.Fatalf("RemoveIgnored absent: %v", err)
	}

	uids, err = s.IgnoredUIDs(ctx)
	if err != nil {
		t.Fatalf("IgnoredUIDs: %v", err)
	}
	if len(uids) != 0 {
		t.Fatalf("want empty list, got %v", uids)
	}
}
