package snapshot

import (
	"strings"
	"testing"
	"time"
)

const testID = "123e4567-e89b-12d3-a456-426614174000"

func testMeta(id string) ActionMeta {
	return ActionMeta{
		ID:           id,
		TargetID:     "TAB1",
		TargetName:   "Standard/abc123",
		CandidateKey: "row-42",
		ButtonText:   "Travel to Hideout",
		RowText:      "Divine Orb 2ex",
		ActionNumber: 1,
		Format:       "jpeg",
		SizeBytes:    4,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	meta := testMeta(testID)
	if err := store.Save(meta, []byte("fake")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(testID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TargetName != meta.TargetName || got.CandidateKey != meta.CandidateKey {
		t.Fatalf("Get() = %+v; want %+v", got, meta)
	}

	data, format, err := store.ReadImage(testID)
	if err != nil {
		t.Fatalf("ReadImage() error = %v", err)
	}
	if string(data) != "fake" || format != "jpeg" {
		t.Fatalf("ReadImage() = %q, %q; want %q, %q", data, format, "fake", "jpeg")
	}
}

func TestSaveRejectsInvalidID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	meta := testMeta("../../etc/passwd")
	err = store.Save(meta, []byte("fake"))
	if err == nil {
		t.Fatal("expected error for invalid id")
	}
	if !strings.Contains(err.Error(), "invalid snapshot id") {
		t.Fatalf("error = %q; want invalid id", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	_, err = store.Get(testID)
	if err == nil {
		t.Fatal("expected error for missing snapshot")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("error = %q; want not found", err)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if err := store.Save(testMeta(testID), []byte("fake")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(testID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(testID); err == nil {
		t.Fatal("Get() after Delete() should fail")
	}
}

func TestListNewestFirst(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	older := testMeta("123e4567-e89b-12d3-a456-426614174001")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := testMeta("123e4567-e89b-12d3-a456-426614174002")

	if err := store.Save(older, []byte("a")); err != nil {
		t.Fatalf("Save(older) error = %v", err)
	}
	if err := store.Save(newer, []byte("b")); err != nil {
		t.Fatalf("Save(newer) error = %v", err)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List() len = %d; want 2", len(metas))
	}
	if metas[0].ID != newer.ID {
		t.Fatalf("List()[0].ID = %s; want %s", metas[0].ID, newer.ID)
	}
}
