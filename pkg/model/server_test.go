package model

import (
	"math/rand"
	"sort"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		port int
		want string
	}{
		{"node", 3000, "node:3000"},
		{"Node", 3000, "node:3000"},
		{"Ripples.Api", 5001, "ripples.api:5001"},
	}
	for _, tt := range tests {
		if got := Key(tt.name, tt.port); got != tt.want {
			t.Errorf("Key(%q, %d) = %q, want %q", tt.name, tt.port, got, tt.want)
		}
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      string
		wantName string
		wantPort int
		wantOK   bool
	}{
		{"node:3000", "node", 3000, true},
		{" Node:3000 ", "node", 3000, true},
		{"my:app:8080", "my:app", 8080, true},
		{"node", "", 0, false},
		{":3000", "", 0, false},
		{"node:", "", 0, false},
		{"node:http", "", 0, false},
		{"node:70000", "", 0, false},
	}
	for _, tt := range tests {
		name, port, ok := ParseKey(tt.key)
		if name != tt.wantName || port != tt.wantPort || ok != tt.wantOK {
			t.Errorf("ParseKey(%q) = (%q, %d, %v), want (%q, %d, %v)",
				tt.key, name, port, ok, tt.wantName, tt.wantPort, tt.wantOK)
		}
	}
}

func TestRecordEqualIgnoresNameAndPath(t *testing.T) {
	a := Record{PID: 100, Name: "node", Port: 3000, ExecutablePath: "/usr/bin/node"}
	b := Record{PID: 100, Name: "other", Port: 3000}
	if !a.Equal(b) {
		t.Fatal("records with same pid and port should be equal")
	}
	if a.Equal(Record{PID: 101, Name: "node", Port: 3000}) {
		t.Fatal("records with different pid should differ")
	}
}

func sortByPort(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Port != rs[j].Port {
			return rs[i].Port < rs[j].Port
		}
		return rs[i].PID < rs[j].PID
	})
}

func TestListsEqualIsSetEqualityAfterSorting(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(6)
		var a []Record
		seen := map[[2]int]bool{}
		for len(a) < n {
			pair := [2]int{rng.Intn(4) + 1, rng.Intn(5) + 3000}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			a = append(a, Record{PID: pair[0], Port: pair[1], Name: "x"})
		}

		b := append([]Record(nil), a...)
		rng.Shuffle(len(b), func(i, j int) { b[i], b[j] = b[j], b[i] })
		sortByPort(a)
		sortByPort(b)
		if !ListsEqual(a, b) {
			t.Fatalf("iteration %d: permuted lists reported different: %v vs %v", iter, a, b)
		}

		if len(b) > 0 {
			c := append([]Record(nil), b...)
			c[rng.Intn(len(c))].PID += 100
			sortByPort(c)
			if ListsEqual(a, c) {
				t.Fatalf("iteration %d: changed pid not detected", iter)
			}
		}
	}
}

func TestRememberedPlaceholder(t *testing.T) {
	r := Remembered{ProcessName: "node", Port: 3000, CommandLine: "node server.js", WorkingDirectory: "/srv"}
	p := r.Placeholder()
	if p.PID != PlaceholderPID || p.Name != "node" || p.Port != 3000 {
		t.Fatalf("unexpected placeholder %+v", p)
	}
	if p.Key() != r.Key() {
		t.Fatalf("placeholder key %q != remembered key %q", p.Key(), r.Key())
	}
	if p.CommandLine != "node server.js" || p.WorkingDirectory != "/srv" {
		t.Fatalf("placeholder lost command info: %+v", p)
	}
}
