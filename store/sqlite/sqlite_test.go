package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"conclave"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := conclave.Conversation{
		ID:        "run-1",
		Mode:      "ranking",
		Question:  "what now?",
		CreatedAt: 1700000001,
		Result:    json.RawMessage(`{"mode":"ranking","stage1":[]}`),
	}
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConversation(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != "ranking" || got.Question != "what now?" {
		t.Fatalf("got = %+v", got)
	}
	if string(got.Result) != `{"mode":"ranking","stage1":[]}` {
		t.Fatalf("result = %s", got.Result)
	}
}

func TestSaveUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := conclave.Conversation{ID: "x", Mode: "debate", Question: "v1", Result: json.RawMessage(`{}`)}
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}
	conv.Question = "v2"
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConversation(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if got.Question != "v2" {
		t.Fatalf("question = %q, want v2", got.Question)
	}
}

func TestListOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		err := s.SaveConversation(ctx, conclave.Conversation{
			ID: id, Mode: "debate", Question: "q",
			CreatedAt: int64(10 + i),
			Result:    json.RawMessage(`{}`),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListConversations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("list = %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveConversation(ctx, conclave.Conversation{ID: "x", Result: json.RawMessage(`{}`)}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteConversation(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetConversation(ctx, "x"); err == nil {
		t.Fatal("expected error after delete")
	}
}
