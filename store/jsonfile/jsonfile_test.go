package jsonfile

import (
	"context"
	"encoding/json"
	"testing"

	"conclave"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := conclave.Conversation{
		ID:        "run-1",
		Mode:      "debate",
		Question:  "why?",
		CreatedAt: 1700000000,
		Result:    json.RawMessage(`{"mode":"debate","rounds":[]}`),
	}
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetConversation(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Mode != "debate" || got.Question != "why?" || got.CreatedAt != 1700000000 {
		t.Fatalf("got = %+v", got)
	}
	if string(got.Result) != `{"mode":"debate","rounds":[]}` {
		t.Fatalf("result = %s", got.Result)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		err := s.SaveConversation(ctx, conclave.Conversation{
			ID:        id,
			Mode:      "ranking",
			Question:  "q",
			CreatedAt: int64(100 + i),
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

func TestDeleteConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := conclave.Conversation{ID: "x", Mode: "debate", Question: "q", Result: json.RawMessage(`{}`)}
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteConversation(ctx, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetConversation(ctx, "x"); err == nil {
		t.Fatal("expected error after delete")
	}
	// Deleting again is fine.
	if err := s.DeleteConversation(ctx, "x"); err != nil {
		t.Fatal(err)
	}
}

func TestRejectsPathTraversalIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := conclave.Conversation{ID: "../evil", Result: json.RawMessage(`{}`)}
	if err := s.SaveConversation(ctx, conv); err == nil {
		t.Fatal("path-traversal id must be rejected")
	}
	if _, err := s.GetConversation(ctx, "../evil"); err == nil {
		t.Fatal("path-traversal id must be rejected on read")
	}
}
