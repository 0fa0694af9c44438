package grouping

import (
	"reflect"
	"testing"

	"github.com/b/portkeeper/pkg/catalog"
	"github.com/b/portkeeper/pkg/model"
)

func TestReconcile_NewLiveServerIsRemembered(t *testing.T) {
	cat := catalog.Open("", nil)
	r := NewReconciler(cat, Options{})

	v := r.Reconcile([]model.Record{{PID: 100, Name: "node", Port: 3000}})

	if len(v.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(v.Rows))
	}
	row := v.Rows[0]
	if !row.Running || row.Grouped() || row.Key != "node:3000" {
		t.Fatalf("unexpected row %+v", row)
	}
	if v.Status != "1 server running" {
		t.Errorf("status = %q", v.Status)
	}
	if _, ok := cat.Lookup("node:3000"); !ok {
		t.Error("catalog should remember node:3000")
	}
}

func TestReconcile_RememberedOnlyYieldsStoppedPlaceholder(t *testing.T) {
	cat := catalog.Open("", nil)
	cat.Remember(model.Remembered{ProcessName: "node", Port: 3000, CommandLine: "node server.js", WorkingDirectory: "/srv"})
	r := NewReconciler(cat, Options{})

	v := r.Reconcile(nil)
	if len(v.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(v.Rows))
	}
	row := v.Rows[0]
	if row.Running || row.Record.PID != model.PlaceholderPID {
		t.Fatalf("expected stopped placeholder, got %+v", row)
	}
	if row.Record.Name != "node" || row.Record.Port != 3000 {
		t.Errorf("placeholder lost identity: %+v", row.Record)
	}
	if !row.CanStart() || row.CommandLine != "node server.js" {
		t.Errorf("placeholder should be startable from remembered command line: %+v", row)
	}
	if v.Status != "0 of 1 running" {
		t.Errorf("status = %q, want %q", v.Status, "0 of 1 running")
	}
}

func TestReconcile_DeletedGroupUngroupsRow(t *testing.T) {
	cat := catalog.Open("", nil)
	g, _ := cat.CreateGroup("Backend", "")
	_ = cat.Assign("node:3000", g.ID)
	r := NewReconciler(cat, Options{})
	live := []model.Record{{PID: 100, Name: "node", Port: 3000}}

	v := r.Reconcile(live)
	if v.Rows[0].GroupName != "Backend" || v.Rows[0].GroupColor == "" {
		t.Fatalf("expected Backend with a palette color, got %+v", v.Rows[0])
	}

	if err := cat.DeleteGroup(g.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := cat.Assignment("node:3000"); ok {
		t.Fatal("assignment should be deleted with the group")
	}
	v = r.Reconcile(live)
	if v.Rows[0].Grouped() {
		t.Errorf("row should be ungrouped after group deletion, got %+v", v.Rows[0])
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	cat := catalog.Open("", nil)
	g, _ := cat.CreateGroup("Web", "#112233")
	_ = cat.Assign("vite:5173", g.ID)
	cat.Remember(model.Remembered{ProcessName: "dotnet", Port: 5000})
	r := NewReconciler(cat, Options{})
	live := []model.Record{
		{PID: 1, Name: "node", Port: 3000},
		{PID: 2, Name: "vite", Port: 5173},
		{PID: 3, Name: "python", Port: 8000},
	}

	first := r.Reconcile(live)
	second := r.Reconcile(live)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reconcile not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestReconcile_PreservesRowIdentity(t *testing.T) {
	cat := catalog.Open("", nil)
	r := NewReconciler(cat, Options{})

	r.Reconcile([]model.Record{{PID: 100, Name: "node", Port: 3000}})
	before, _ := r.Row("node:3000")
	r.Update("node:3000", func(row *Row) { row.Terminating = true })

	// Process restarts with a new PID, then stops.
	v := r.Reconcile([]model.Record{{PID: 200, Name: "node", Port: 3000}})
	after := v.Rows[0]
	if after.ID != before.ID || after.Key != before.Key {
		t.Fatalf("row identity changed: %+v -> %+v", before, after)
	}
	if after.Record.PID != 200 {
		t.Errorf("record not refreshed in place: %+v", after.Record)
	}
	if !after.Terminating {
		t.Error("transient state lost across reconciliation")
	}

	v = r.Reconcile(nil)
	stopped := v.Rows[0]
	if stopped.ID != before.ID || stopped.Running {
		t.Errorf("stopped row should keep identity and be marked stopped: %+v", stopped)
	}
	if stopped.Terminating {
		t.Error("terminating flag should clear once the row is stopped")
	}
}

func TestReconcile_Ordering(t *testing.T) {
	cat := catalog.Open("", nil)
	zed, _ := cat.CreateGroup("zed", "")
	api, _ := cat.CreateGroup("API", "")
	_ = cat.Assign("a:9000", zed.ID)
	_ = cat.Assign("b:8000", api.ID)
	_ = cat.Assign("c:7000", api.ID)
	r := NewReconciler(cat, Options{})

	v := r.Reconcile([]model.Record{
		{PID: 1, Name: "u", Port: 1000},
		{PID: 2, Name: "c", Port: 7000},
		{PID: 3, Name: "b", Port: 8000},
		{PID: 4, Name: "a", Port: 9000},
		{PID: 5, Name: "t", Port: 500},
	})
	var keys []string
	for _, row := range v.Rows {
		keys = append(keys, row.Key)
	}
	want := []string{"c:7000", "b:8000", "a:9000", "t:500", "u:1000"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("order = %v, want %v", keys, want)
	}
}

func TestReconcile_DropsForgottenStoppedRows(t *testing.T) {
	cat := catalog.Open("", nil)
	r := NewReconciler(cat, Options{})
	r.Reconcile([]model.Record{{PID: 1, Name: "node", Port: 3000}})

	cat.Forget("node:3000")
	v := r.Reconcile(nil)
	if len(v.Rows) != 0 || v.Status != "No servers" {
		t.Fatalf("forgotten stopped server should disappear, got %+v", v)
	}
}

func TestReconcile_CommandLineMergeAndRetention(t *testing.T) {
	cat := catalog.Open("", nil)
	r := NewReconciler(cat, Options{})

	r.Reconcile([]model.Record{{PID: 1, Name: "node", Port: 3000}})
	r.Reconcile([]model.Record{{PID: 1, Name: "node", Port: 3000, CommandLine: "node a.js", WorkingDirectory: "/a"}})
	if rem, _ := cat.Lookup("node:3000"); rem.CommandLine != "node a.js" {
		t.Errorf("catalog did not gain the command line: %+v", rem)
	}

	v := r.Reconcile([]model.Record{{PID: 1, Name: "node", Port: 3000}})
	if v.Rows[0].CommandLine != "node a.js" {
		t.Errorf("row lost known command line: %+v", v.Rows[0])
	}
}

func TestReconcile_DuplicateKeyFirstWins(t *testing.T) {
	cat := catalog.Open("", nil)
	r := NewReconciler(cat, Options{})
	v := r.Reconcile([]model.Record{
		{PID: 10, Name: "node", Port: 3000},
		{PID: 11, Name: "Node", Port: 3000},
	})
	if len(v.Rows) != 1 || v.Rows[0].Record.PID != 10 {
		t.Fatalf("expected the first record to win, got %+v", v.Rows)
	}
}

func TestReconcile_IgnoredRememberedRows(t *testing.T) {
	cat := catalog.Open("", nil)
	cat.Remember(model.Remembered{ProcessName: "node", Port: 3000})
	_ = cat.AddIgnored("node")

	shown := NewReconciler(cat, Options{}).Reconcile(nil)
	if len(shown.Rows) != 1 {
		t.Errorf("remembered rows of ignored names stay visible by default, got %d rows", len(shown.Rows))
	}
	hidden := NewReconciler(cat, Options{HideIgnoredRemembered: true}).Reconcile(nil)
	if len(hidden.Rows) != 0 {
		t.Errorf("HideIgnoredRemembered should drop the row, got %d rows", len(hidden.Rows))
	}
}

func TestReconcile_RemoveAndFindPID(t *testing.T) {
	cat := catalog.Open("", nil)
	r := NewReconciler(cat, Options{})
	r.Reconcile([]model.Record{{PID: 42, Name: "node", Port: 3000}, {PID: 43, Name: "vite", Port: 5173}})

	if row, ok := r.FindPID(42); !ok || row.Key != "node:3000" {
		t.Fatalf("FindPID(42) = %+v, %v", row, ok)
	}
	if !r.Remove("NODE:3000") {
		t.Fatal("Remove() = false")
	}
	v := r.View()
	if len(v.Rows) != 1 || v.Rows[0].Key != "vite:5173" {
		t.Errorf("View() after Remove = %+v", v.Rows)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		running, total int
		want           string
	}{
		{0, 0, "No servers"},
		{1, 1, "1 server running"},
		{3, 3, "3 servers running"},
		{0, 1, "0 of 1 running"},
		{2, 5, "2 of 5 running"},
	}
	for _, tt := range tests {
		if got := Status(tt.running, tt.total); got != tt.want {
			t.Errorf("Status(%d, %d) = %q, want %q", tt.running, tt.total, got, tt.want)
		}
	}
}
