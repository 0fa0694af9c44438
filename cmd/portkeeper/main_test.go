package main

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"github.com/b/portkeeper/pkg/grouping"
	"github.com/b/portkeeper/pkg/model"
)

func TestStopTarget(t *testing.T) {
	tests := []struct {
		arg     string
		wantPID int
		wantKey string
	}{
		{"4242", 4242, ""},
		{"node:3000", 0, "node:3000"},
		{"0", 0, "0"},
		{"-5", 0, "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			req := stopTarget(tt.arg)
			if req.PID != tt.wantPID || req.Key != tt.wantKey {
				t.Errorf("stopTarget(%q) = pid %d key %q", tt.arg, req.PID, req.Key)
			}
		})
	}
}

func TestMatchGroup(t *testing.T) {
	groups := []model.Group{
		{ID: "a1", Name: "Backend"},
		{ID: "b2", Name: "Frontend"},
	}
	if g, ok := matchGroup(groups, "b2"); !ok || g.Name != "Frontend" {
		t.Errorf("by id: %+v %v", g, ok)
	}
	if g, ok := matchGroup(groups, " backend "); !ok || g.ID != "a1" {
		t.Errorf("by name: %+v %v", g, ok)
	}
	if _, ok := matchGroup(groups, "Ops"); ok {
		t.Error("unknown group matched")
	}
}

func TestRenderTable(t *testing.T) {
	view := grouping.View{
		Rows: []grouping.Row{
			{Key: "node:3000", Running: true, Record: model.Record{PID: 100}, GroupID: "g", GroupName: "Backend", CommandLine: "node server.js"},
			{Key: "dotnet:5000", GroupID: "g", GroupName: "Backend", CommandLine: "dotnet run"},
			{Key: "vite:5173", Running: true, Record: model.Record{PID: 200}, Terminating: true},
		},
		Running: 2,
		Total:   3,
		Status:  "2 of 3 running",
	}
	out := renderTable(view, tableOptions{Width: 80})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	want := []string{"Backend (1/2 running)", "node:3000", "dotnet:5000", "Ungrouped (1/1 running)", "vite:5173", "2 of 3 running"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	for i, w := range want {
		if !strings.Contains(lines[i], w) {
			t.Errorf("line %d = %q, want it to contain %q", i, lines[i], w)
		}
	}
	if !strings.Contains(lines[1], "●") || !strings.Contains(lines[1], "pid 100") {
		t.Errorf("running row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "○") || !strings.Contains(lines[2], "stopped") {
		t.Errorf("stopped row = %q", lines[2])
	}
	if !strings.Contains(lines[4], "stopping") {
		t.Errorf("terminating row = %q", lines[4])
	}
}

func TestRenderTable_TruncatesCommand(t *testing.T) {
	view := grouping.View{
		Rows:   []grouping.Row{{Key: "node:3000", Running: true, Record: model.Record{PID: 1}, CommandLine: strings.Repeat("x", 200)}},
		Status: "1 server running",
	}
	out := renderTable(view, tableOptions{Width: 40})
	for _, line := range strings.Split(out, "\n") {
		if w := runewidth.StringWidth(line); w > 40 {
			t.Errorf("line width %d exceeds 40: %q", w, line)
		}
	}
	if !strings.Contains(out, "…") {
		t.Errorf("expected an ellipsis:\n%s", out)
	}
}

func TestRenderTable_Empty(t *testing.T) {
	out := renderTable(grouping.View{Status: "No servers"}, tableOptions{})
	if out != "No servers\n" {
		t.Errorf("empty table = %q", out)
	}
}
