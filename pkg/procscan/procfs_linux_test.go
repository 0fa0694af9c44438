//go:build linux

package procscan

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const tcpHeader = "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n"

// writeFixture lays out a minimal /proc tree: pid 100 listens on 3000 over
// IPv4 and IPv6 plus 8080, pid 200 holds only an established socket.
func writeFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mustWrite := func(rel, content string) {
		t.Helper()
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	mustLink := func(target, rel string) {
		t.Helper()
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(target, p); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite("net/tcp", tcpHeader+
		"   0: 0100007F:0BB8 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 1001 1 0000000000000000 100 0 0 10 0\n"+
		"   1: 00000000:1F90 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 1002 1 0000000000000000 100 0 0 10 0\n"+
		"   2: 0100007F:C350 0100007F:0BB8 01 00000000:00000000 00:00000000 00000000  1000        0 2001 1 0000000000000000 20 4 30 10 -1\n")
	mustWrite("net/tcp6", tcpHeader+
		"   0: 00000000000000000000000000000000:0BB8 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 1003 1 0000000000000000 100 0 0 10 0\n")

	mustWrite("100/cmdline", "node\x00server.js\x00--name\x00my app\x00")
	mustLink("/srv/app", "100/cwd")
	mustLink("socket:[1001]", "100/fd/3")
	mustLink("socket:[1002]", "100/fd/4")
	mustLink("socket:[1003]", "100/fd/5")
	mustLink("/dev/null", "100/fd/0")

	mustWrite("200/cmdline", "curl\x00localhost:3000\x00")
	mustLink("socket:[2001]", "200/fd/3")
	return root
}

func TestProcFS_Listeners(t *testing.T) {
	pfs, err := NewProcFS(writeFixture(t), nil)
	if err != nil {
		t.Fatalf("NewProcFS() error: %v", err)
	}
	got := pfs.Listeners()
	want := map[int][]int{100: {3000, 8080}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Listeners() = %v, want %v", got, want)
	}
}

func TestProcFS_CommandLine(t *testing.T) {
	pfs, err := NewProcFS(writeFixture(t), nil)
	if err != nil {
		t.Fatalf("NewProcFS() error: %v", err)
	}
	info, ok := pfs.CommandLine(100)
	if !ok {
		t.Fatal("CommandLine(100) not found")
	}
	if info.CommandLine != `node server.js --name "my app"` {
		t.Errorf("command line = %q", info.CommandLine)
	}
	if info.WorkingDirectory != "/srv/app" {
		t.Errorf("working dir = %q", info.WorkingDirectory)
	}

	if _, ok := pfs.CommandLine(999); ok {
		t.Error("CommandLine(999) should be absent")
	}
}

func TestSocketInode(t *testing.T) {
	tests := []struct {
		target string
		want   uint64
		ok     bool
	}{
		{"socket:[1234]", 1234, true},
		{"pipe:[1234]", 0, false},
		{"socket:[abc]", 0, false},
		{"/dev/null", 0, false},
	}
	for _, tt := range tests {
		got, ok := socketInode(tt.target)
		if got != tt.want || ok != tt.ok {
			t.Errorf("socketInode(%q) = (%d, %v), want (%d, %v)", tt.target, got, ok, tt.want, tt.ok)
		}
	}
}
