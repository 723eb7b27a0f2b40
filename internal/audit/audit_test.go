package audit

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordStartedThenFinished(t *testing.T) {
	s := openTestStore(t)
	start := time.Now().UTC().Truncate(time.Second)

	s.RecordStarted("inv-1", "proj-a", "sess-1", start)

	rec, err := s.Get("inv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil {
		t.Fatal("got nil record after RecordStarted")
	}
	if rec.Alias != "proj-a" || rec.SessionID != "sess-1" {
		t.Errorf("record = %+v, want alias=proj-a session=sess-1", rec)
	}
	if rec.FinishedAt != nil {
		t.Errorf("expected FinishedAt nil before completion, got %v", rec.FinishedAt)
	}

	finish := start.Add(5 * time.Second)
	s.RecordFinished("inv-1", finish, 0, false, "")

	rec, err = s.Get("inv-1")
	if err != nil {
		t.Fatalf("get after finish: %v", err)
	}
	if rec.FinishedAt == nil {
		t.Fatal("expected FinishedAt set after RecordFinished")
	}
	if rec.ExitCode == nil || *rec.ExitCode != 0 {
		t.Errorf("exit code = %v, want 0", rec.ExitCode)
	}
	if rec.Aborted {
		t.Error("expected aborted=false")
	}
}

func TestRecordFinishedWithAbortAndError(t *testing.T) {
	s := openTestStore(t)
	start := time.Now().UTC()
	s.RecordStarted("inv-2", "proj-b", "", start)
	s.RecordFinished("inv-2", start.Add(time.Second), 143, true, "invocation aborted")

	rec, err := s.Get("inv-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !rec.Aborted {
		t.Error("expected aborted=true")
	}
	if rec.Error != "invocation aborted" {
		t.Errorf("error = %q, want %q", rec.Error, "invocation aborted")
	}
	if rec.SessionID != "" {
		t.Errorf("expected empty session id, got %q", rec.SessionID)
	}
}

func TestGetUnknownReturnsNilNotError(t *testing.T) {
	s := openTestStore(t)
	rec, err := s.Get("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestListByAliasOrdersNewestFirstAndRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()
	for i, id := range []string{"inv-a", "inv-b", "inv-c"} {
		s.RecordStarted(id, "proj-a", "", base.Add(time.Duration(i)*time.Minute))
	}
	s.RecordStarted("inv-other", "proj-b", "", base)

	all, err := s.ListByAlias("proj-a", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records for proj-a, got %d", len(all))
	}
	if all[0].ID != "inv-c" {
		t.Errorf("expected newest-first, got %+v", all)
	}

	limited, err := s.ListByAlias("proj-a", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "inv-c" {
		t.Errorf("expected single newest record, got %+v", limited)
	}
}
