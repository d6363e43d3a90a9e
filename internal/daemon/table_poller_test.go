package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"

	"daqbridge/internal/attr"
	"daqbridge/internal/device"
	"daqbridge/internal/table"
)

// scriptedSender answers device commands from canned responses.
type scriptedSender struct {
	mu      sync.Mutex
	changes []string
	tables  map[string][]string
	failAll error
	fetched []string
}

func (s *scriptedSender) Send(_ context.Context, cmd device.Command) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	switch c := cmd.(type) {
	case device.GetChanges:
		out := s.changes
		s.changes = nil
		return out, nil
	case device.GetMultiline:
		s.fetched = append(s.fetched, c.Field)
		words, ok := s.tables[c.Field]
		if !ok {
			return nil, errors.New("ERR No such field")
		}
		return append([]string(nil), words...), nil
	}
	return []string{"OK"}, nil
}

func (s *scriptedSender) fetches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.fetched...)
	s.fetched = nil
	return out
}

const testCatalog = `
tables:
  - name: SEQ1.TABLE
    row_words: 1
    fields:
      - {name: REPEATS, bit_low: 0, bit_high: 15}
      - {name: TRIGGER, bit_low: 16, bit_high: 19}
  - name: SEQ2.TABLE
    row_words: 1
    fields:
      - {name: REPEATS, bit_low: 0, bit_high: 31}
`

func buildTestEditors(t *testing.T, sender *scriptedSender) []*table.Editor {
	t.Helper()
	catalog, err := table.ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	editors, err := BuildEditors(context.Background(), catalog, sender, nil, "DAQ", nil, nil)
	if err != nil {
		t.Fatalf("BuildEditors: %v", err)
	}
	return editors
}

func TestBuildEditorsSeedsFromDevice(t *testing.T) {
	sender := &scriptedSender{tables: map[string][]string{"SEQ1.TABLE": {"65541", "3"}}}
	editors := buildTestEditors(t, sender)
	if len(editors) != 2 {
		t.Fatalf("expected 2 editors, got %d", len(editors))
	}

	seq1 := editors[0].Snapshot()
	if seq1.Name != "SEQ1.TABLE" || seq1.Rows != 2 {
		t.Fatalf("unexpected SEQ1 snapshot: %+v", seq1)
	}
	if got := seq1.Columns[0].Values; got[0] != 5 || got[1] != 3 {
		t.Errorf("REPEATS = %v, want [5 3]", got)
	}
	if got := seq1.Columns[1].Values; got[0] != 1 || got[1] != 0 {
		t.Errorf("TRIGGER = %v, want [1 0]", got)
	}

	if editors[1].InError() == nil {
		t.Error("table the device could not report should start in error")
	}
}

func TestTablePollerReloadsChangedTables(t *testing.T) {
	sender := &scriptedSender{tables: map[string][]string{"SEQ1.TABLE": {"1"}}}
	editors := buildTestEditors(t, sender)
	sender.fetches()
	sender.tables["SEQ2.TABLE"] = []string{"2"}
	p := newTablePoller(sender, editors, 0, nil)
	ctx := context.Background()

	// The first poll resyncs everything.
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if got := sender.fetches(); len(got) != 2 {
		t.Fatalf("resync fetched %v, want both tables", got)
	}
	if editors[1].InError() != nil {
		t.Errorf("reload should clear the error: %v", editors[1].InError())
	}

	sender.mu.Lock()
	sender.changes = []string{"SEQ2.TABLE<", "PCAP.ARM=0"}
	sender.tables["SEQ2.TABLE"] = []string{"7", "8"}
	sender.mu.Unlock()
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if got := sender.fetches(); len(got) != 1 || got[0] != "SEQ2.TABLE" {
		t.Fatalf("fetched %v, want only SEQ2.TABLE", got)
	}
	if snap := editors[1].Snapshot(); snap.Rows != 2 {
		t.Errorf("SEQ2 rows = %d, want 2", snap.Rows)
	}

	// Nothing changed, nothing fetched.
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if got := sender.fetches(); len(got) != 0 {
		t.Fatalf("unexpected fetches %v", got)
	}
}

func TestTablePollerMarksTablesInError(t *testing.T) {
	sender := &scriptedSender{tables: map[string][]string{"SEQ1.TABLE": {"1"}, "SEQ2.TABLE": {"2"}}}
	editors := buildTestEditors(t, sender)
	p := newTablePoller(sender, editors, 0, nil)
	p.resync = false

	sender.changes = []string{"SEQ1.TABLE (error)"}
	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if editors[0].InError() == nil {
		t.Error("expected SEQ1.TABLE to be marked in error")
	}
	if editors[1].InError() != nil {
		t.Error("SEQ2.TABLE should be unaffected")
	}
}

func TestTablePollerResyncKeepsDeviceError(t *testing.T) {
	sender := &scriptedSender{tables: map[string][]string{"SEQ1.TABLE": {"5", "3"}, "SEQ2.TABLE": {"2"}}}
	editors := buildTestEditors(t, sender)
	p := newTablePoller(sender, editors, 0, nil)
	ctx := context.Background()
	sender.fetches()

	// First poll is a resync; the flagged table must not be reloaded.
	sender.changes = []string{"SEQ1.TABLE (error)"}
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if got := sender.fetches(); len(got) != 1 || got[0] != "SEQ2.TABLE" {
		t.Fatalf("resync fetched %v, want only SEQ2.TABLE", got)
	}
	seq1 := editors[0]
	if seq1.InError() == nil {
		t.Fatal("SEQ1.TABLE lost the error the device reported")
	}

	// A failed submit of a flagged table keeps the edits.
	failing := &scriptedSender{failAll: errors.New("device said no")}
	e, err := table.NewEditor("SEQ1.TABLE", seq1Schema(t), []string{"5", "3"}, table.EditorOptions{Prefix: "DAQ", Sender: failing})
	if err != nil {
		t.Fatalf("NewEditor: %v", err)
	}
	p = newTablePoller(sender, []*table.Editor{e}, 0, nil)
	sender.changes = []string{"SEQ1.TABLE (error)"}
	if err := p.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	attrs := make(map[string]*attr.Attribute)
	for _, a := range e.Attributes() {
		attrs[a.Name()] = a
	}
	mode, repeats := attrs["DAQ:SEQ1:TABLE:MODE"], attrs["DAQ:SEQ1:TABLE:REPEATS"]
	if err := mode.Put(ctx, "EDIT"); err != nil {
		t.Fatalf("EDIT: %v", err)
	}
	if err := repeats.Put(ctx, []int64{9, 9}); err != nil {
		t.Fatalf("put REPEATS: %v", err)
	}
	if err := mode.Put(ctx, "SUBMIT"); err != nil {
		t.Fatalf("SUBMIT: %v", err)
	}
	got, err := attr.Ints(repeats.Get())
	if err != nil || len(got) != 2 || got[0] != 9 || got[1] != 9 {
		t.Fatalf("REPEATS after failed submit = %v (%v), want [9 9]", got, err)
	}
}

func seq1Schema(t *testing.T) *table.Schema {
	t.Helper()
	schema, err := table.NewSchema(1, []table.Field{
		{Name: "REPEATS", BitLow: 0, BitHigh: 15, Kind: table.KindUnsigned},
		{Name: "TRIGGER", BitLow: 16, BitHigh: 19, Kind: table.KindUnsigned},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return schema
}

func TestTablePollerTriggerRequestsResync(t *testing.T) {
	sender := &scriptedSender{tables: map[string][]string{"SEQ1.TABLE": {"1"}, "SEQ2.TABLE": {"2"}}}
	editors := buildTestEditors(t, sender)
	p := newTablePoller(sender, editors, 0, nil)
	p.resync = false
	sender.fetches()

	p.Trigger()
	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if got := sender.fetches(); len(got) != 2 {
		t.Fatalf("trigger should reload every table, fetched %v", got)
	}
}

func TestTablePollerFailureForcesResync(t *testing.T) {
	sender := &scriptedSender{tables: map[string][]string{"SEQ1.TABLE": {"1"}, "SEQ2.TABLE": {"2"}}}
	editors := buildTestEditors(t, sender)
	p := newTablePoller(sender, editors, 0, nil)
	p.resync = false
	ctx := context.Background()

	sender.failAll = errors.New("connection reset")
	p.poll(ctx)
	if h := p.HealthCheck(ctx); h.Ready {
		t.Error("expected unhealthy poller after failure")
	}

	sender.mu.Lock()
	sender.failAll = nil
	sender.mu.Unlock()
	sender.fetches()
	p.poll(ctx)
	if got := sender.fetches(); len(got) != 2 {
		t.Fatalf("recovery should reload every table, fetched %v", got)
	}
}

func TestTablePollerStartStop(t *testing.T) {
	sender := &scriptedSender{tables: map[string][]string{"SEQ1.TABLE": {"1"}, "SEQ2.TABLE": {"2"}}}
	p := newTablePoller(sender, buildTestEditors(t, sender), 0, nil)
	p.Start(context.Background())
	p.Start(context.Background())
	p.Stop()
	p.Stop()
	if h := p.HealthCheck(context.Background()); h.Ready {
		t.Error("stopped poller should report unhealthy")
	}
}
