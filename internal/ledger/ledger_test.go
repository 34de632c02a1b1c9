package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLedger_AppendAssignsIncreasingIDs(t *testing.T) {
	l := New()

	var last int64
	for i, text := range []string{"one", "two", "three"} {
		tr, err := l.Append("Alice", text)
		if err != nil {
			t.Fatalf("append %d: unexpected error: %v", i, err)
		}
		if tr.ID <= last {
			t.Errorf("append %d: id %d not greater than %d", i, tr.ID, last)
		}
		last = tr.ID
	}
	if last != 3 {
		t.Errorf("expected last id 3, got %d", last)
	}
}

func TestLedger_AppendEmptyNeverAllocates(t *testing.T) {
	l := New()

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := l.Append("Alice", text); !errors.Is(err, ErrEmptyTranscript) {
			t.Errorf("Append(%q): expected ErrEmptyTranscript, got %v", text, err)
		}
	}

	tr, err := l.Append("Alice", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.ID != 1 {
		t.Errorf("expected first id 1 after rejected appends, got %d", tr.ID)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 transcript, got %d", l.Len())
	}
}

func TestLedger_AppendStampsFields(t *testing.T) {
	l := New()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	tr, err := l.Append("Bob", "  good morning  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "good morning" {
		t.Errorf("expected trimmed text, got %q", tr.Text)
	}
	if tr.Participant != "Bob" {
		t.Errorf("expected participant Bob, got %s", tr.Participant)
	}
	if !tr.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, tr.Timestamp)
	}
	if tr.Confidence != NominalConfidence {
		t.Errorf("expected confidence %v, got %v", NominalConfidence, tr.Confidence)
	}
}

func TestLedger_AllIsReadOnlyCopy(t *testing.T) {
	l := New()
	_, _ = l.Append("Alice", "first")

	all := l.All()
	all[0].Text = "mutated"

	if l.All()[0].Text != "first" {
		t.Error("expected ledger contents to be unaffected by caller mutation")
	}
}

func TestLedger_Since(t *testing.T) {
	l := New()
	for _, text := range []string{"a", "b", "c", "d"} {
		_, _ = l.Append("Alice", text)
	}

	got := l.Since(2)
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 4 {
		t.Errorf("expected ids [3 4], got %+v", got)
	}
	if len(l.Since(0)) != 4 {
		t.Error("expected Since(0) to return everything")
	}
	if len(l.Since(4)) != 0 {
		t.Error("expected Since(last) to return nothing")
	}
	if got := l.Since(10); got == nil || len(got) != 0 {
		t.Errorf("expected an empty, non-nil slice past the last id, got %v", got)
	}
}

func TestLedger_ByParticipant(t *testing.T) {
	l := New()
	_, _ = l.Append("Alice", "one")
	_, _ = l.Append("Bob", "two")
	_, _ = l.Append("Alice", "three")

	got := l.ByParticipant("Alice")
	if len(got) != 2 || got[0].Text != "one" || got[1].Text != "three" {
		t.Errorf("unexpected transcripts for Alice: %+v", got)
	}
}

func TestLedger_ConcurrentAppendUniqueIDs(t *testing.T) {
	l := New()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = l.Append("Alice", "text")
			}
		}()
	}
	wg.Wait()

	all := l.All()
	if len(all) != 200 {
		t.Fatalf("expected 200 transcripts, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("ids not strictly increasing at %d: %d then %d", i, all[i-1].ID, all[i].ID)
		}
	}
}

func TestSequence_Next(t *testing.T) {
	s := NewSequence()
	if s.Last() != 0 {
		t.Errorf("expected last 0, got %d", s.Last())
	}
	if s.Next() != 1 || s.Next() != 2 {
		t.Error("expected sequence 1, 2")
	}
	if s.Last() != 2 {
		t.Errorf("expected last 2, got %d", s.Last())
	}
}
