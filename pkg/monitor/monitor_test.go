package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/b/portkeeper/pkg/catalog"
	"github.com/b/portkeeper/pkg/grouping"
	"github.com/b/portkeeper/pkg/launch"
	"github.com/b/portkeeper/pkg/model"
	"github.com/b/portkeeper/pkg/procscan"
	"github.com/b/portkeeper/pkg/terminate"
)

// fakeSource is a mutable process table. When hold is set, the next
// command line lookup closes entered and waits on hold.
type fakeSource struct {
	mu    sync.Mutex
	ports map[int][]int
	procs []procscan.Process
	cmds  map[int]procscan.CommandInfo

	hold    chan struct{}
	entered chan struct{}
}

func (f *fakeSource) Listeners() map[int][]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int][]int, len(f.ports))
	for pid, ports := range f.ports {
		out[pid] = append([]int(nil), ports...)
	}
	return out
}

func (f *fakeSource) Processes() ([]procscan.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]procscan.Process(nil), f.procs...), nil
}

func (f *fakeSource) CommandLine(pid int) (procscan.CommandInfo, bool) {
	f.mu.Lock()
	hold, entered := f.hold, f.entered
	f.hold = nil
	f.mu.Unlock()
	if hold != nil {
		close(entered)
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.cmds[pid]
	return info, ok
}

func (f *fakeSource) add(pid int, name string, port int, cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ports == nil {
		f.ports = map[int][]int{}
		f.cmds = map[int]procscan.CommandInfo{}
	}
	f.ports[pid] = append(f.ports[pid], port)
	f.procs = append(f.procs, procscan.Process{PID: pid, Name: name, ExecutablePath: "/usr/bin/" + name})
	if cmd != "" {
		f.cmds[pid] = procscan.CommandInfo{CommandLine: cmd, WorkingDirectory: "/srv"}
	}
}

func (f *fakeSource) remove(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ports, pid)
	for i, p := range f.procs {
		if p.PID == pid {
			f.procs = append(f.procs[:i], f.procs[i+1:]...)
			break
		}
	}
}

// fakePlatform kills processes out of the fake source on close.
type fakePlatform struct {
	src     *fakeSource
	release chan struct{}
}

func (p *fakePlatform) Exists(pid int) bool {
	p.src.mu.Lock()
	defer p.src.mu.Unlock()
	_, ok := p.src.ports[pid]
	return ok
}
func (p *fakePlatform) CanClose(int) bool { return true }
func (p *fakePlatform) Close(pid int) error {
	if p.release != nil {
		<-p.release
	}
	p.src.remove(pid)
	return nil
}
func (p *fakePlatform) HasConsole(int) bool { return false }
func (p *fakePlatform) AttachConsole(int) (terminate.Console, error) {
	return nil, errors.New("no console")
}
func (p *fakePlatform) KillTree(pid int) error {
	p.src.remove(pid)
	return nil
}
func (p *fakePlatform) WaitExit(_ context.Context, pid int, _ time.Duration) bool {
	return !p.Exists(pid)
}

type fakeStarter struct {
	mu    sync.Mutex
	calls []string
	err   error
	onRun func()
}

func (s *fakeStarter) Start(commandLine, workDir, label string) (launch.Process, error) {
	s.mu.Lock()
	s.calls = append(s.calls, commandLine+"|"+workDir+"|"+label)
	s.mu.Unlock()
	if s.err != nil {
		return launch.Process{}, s.err
	}
	if s.onRun != nil {
		s.onRun()
	}
	return launch.Process{PID: 999}, nil
}

func (s *fakeStarter) Running() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 || s.err != nil {
		return nil
	}
	return []int{999}
}

type fixture struct {
	src      *fakeSource
	platform *fakePlatform
	starter  *fakeStarter
	catalog  *catalog.Catalog
	mon      *Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := &fakeSource{}
	f := &fixture{
		src:      src,
		platform: &fakePlatform{src: src},
		starter:  &fakeStarter{},
		catalog:  catalog.Open(filepath.Join(t.TempDir(), "catalog.yaml"), nil),
	}
	f.mon = New(Deps{
		Source:   src,
		Catalog:  f.catalog,
		Platform: f.platform,
		Starter:  f.starter,
	}, Options{
		Interval:         time.Hour,
		TerminateTimeout: 100 * time.Millisecond,
		ForceKillWait:    50 * time.Millisecond,
		SettleDelay:      10 * time.Millisecond,
	})
	return f
}

func rowByKey(v grouping.View, key string) (grouping.Row, bool) {
	for _, r := range v.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return grouping.Row{}, false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRefresh_RemembersAndKeepsStoppedRows(t *testing.T) {
	f := newFixture(t)
	f.src.add(100, "node", 3000, "node server.js")

	v := f.mon.Refresh()
	if v.Running != 1 || v.Total != 1 {
		t.Fatalf("view = %+v, want one running", v)
	}
	if _, ok := f.catalog.Lookup("node:3000"); !ok {
		t.Fatal("live server was not remembered")
	}

	f.src.remove(100)
	v = f.mon.Refresh()
	row, ok := rowByKey(v, "node:3000")
	if !ok || row.Running {
		t.Fatalf("stopped server should stay as a stopped row, got %+v (found %v)", row, ok)
	}
	if row.CommandLine != "node server.js" {
		t.Errorf("stopped row lost command line: %q", row.CommandLine)
	}
	if v.Status != "0 of 1 running" {
		t.Errorf("status = %q", v.Status)
	}
}

func TestTerminateKey_MarksRowAndRefreshesOnCompletion(t *testing.T) {
	f := newFixture(t)
	f.platform.release = make(chan struct{})
	f.src.add(100, "node", 3000, "node server.js")
	f.mon.Refresh()

	pid, done, err := f.mon.TerminateKey("node:3000", 0)
	if err != nil {
		t.Fatalf("TerminateKey() error: %v", err)
	}
	if pid != 100 {
		t.Errorf("TerminateKey() pid = %d, want 100", pid)
	}
	row, _ := rowByKey(f.mon.View(), "node:3000")
	if !row.Terminating {
		t.Fatal("row should be marked terminating while escalation runs")
	}
	if _, err := f.mon.Terminate(100, 0); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Terminate() error = %v, want ErrBusy", err)
	}

	close(f.platform.release)
	res := <-done
	if !res.OK || res.Stage != terminate.StageClose {
		t.Fatalf("result = %+v, want OK at close", res)
	}
	row, _ = rowByKey(f.mon.View(), "node:3000")
	if row.Running || row.Terminating {
		t.Fatalf("row after termination = %+v, want stopped and idle", row)
	}
}

func TestTerminateKey_RejectsStoppedAndUnknown(t *testing.T) {
	f := newFixture(t)
	f.catalog.Remember(model.Remembered{ProcessName: "node", Port: 3000})
	f.mon.Refresh()

	if _, _, err := f.mon.TerminateKey("node:3000", 0); !errors.Is(err, ErrNotRunning) {
		t.Errorf("stopped: err = %v, want ErrNotRunning", err)
	}
	if _, _, err := f.mon.TerminateKey("vite:5173", 0); !errors.Is(err, ErrUnknownServer) {
		t.Errorf("unknown: err = %v, want ErrUnknownServer", err)
	}
}

func TestStartServer_UsesRememberedCommand(t *testing.T) {
	f := newFixture(t)
	f.catalog.Remember(model.Remembered{ProcessName: "node", Port: 3000, CommandLine: "node server.js", WorkingDirectory: "/srv"})
	f.starter.onRun = func() { f.src.add(200, "node", 3000, "node server.js") }
	f.mon.Refresh()

	if _, err := f.mon.StartServer("node:3000"); err != nil {
		t.Fatalf("StartServer() error: %v", err)
	}
	if got := f.starter.calls; len(got) != 1 || got[0] != "node server.js|/srv|node:3000" {
		t.Fatalf("starter calls = %v", got)
	}
	waitFor(t, "started server to show running", func() bool {
		row, _ := rowByKey(f.mon.View(), "node:3000")
		return row.Running && !row.Starting && row.Record.PID == 200
	})
	if got := f.mon.Status().Launched; len(got) != 1 || got[0] != 999 {
		t.Errorf("Status().Launched = %v, want the started pid", got)
	}
}

func TestStartServer_Errors(t *testing.T) {
	f := newFixture(t)
	f.catalog.Remember(model.Remembered{ProcessName: "dotnet", Port: 5000})
	f.src.add(100, "node", 3000, "node server.js")
	f.mon.Refresh()

	if _, err := f.mon.StartServer("dotnet:5000"); !errors.Is(err, ErrNoCommandLine) {
		t.Errorf("no command: err = %v", err)
	}
	if _, err := f.mon.StartServer("node:3000"); !errors.Is(err, ErrBusy) {
		t.Errorf("running: err = %v", err)
	}

	f.catalog.Remember(model.Remembered{ProcessName: "dotnet", Port: 5000, CommandLine: "dotnet run"})
	f.starter.err = launch.ErrBadWorkDir
	f.mon.regroup()
	if _, err := f.mon.StartServer("dotnet:5000"); !errors.Is(err, launch.ErrBadWorkDir) {
		t.Errorf("launch failure: err = %v", err)
	}
	row, _ := rowByKey(f.mon.View(), "dotnet:5000")
	if row.Starting {
		t.Error("failed start should clear the starting flag")
	}
}

func TestGroupActionsRegroup(t *testing.T) {
	f := newFixture(t)
	f.src.add(100, "node", 3000, "")
	f.mon.Refresh()

	g, err := f.mon.CreateGroupAndAssign("Backend", "#ff0000", "node:3000")
	if err != nil {
		t.Fatalf("CreateGroupAndAssign() error: %v", err)
	}
	row, _ := rowByKey(f.mon.View(), "node:3000")
	if row.GroupID != g.ID || row.GroupName != "Backend" {
		t.Fatalf("row not regrouped: %+v", row)
	}

	name := "Services"
	if _, err := f.mon.UpdateGroup(g.ID, catalog.GroupUpdate{Name: &name}); err != nil {
		t.Fatal(err)
	}
	row, _ = rowByKey(f.mon.View(), "node:3000")
	if row.GroupName != "Services" {
		t.Errorf("rename not reflected: %q", row.GroupName)
	}

	f.mon.RemoveFromGroup("node:3000")
	row, _ = rowByKey(f.mon.View(), "node:3000")
	if row.Grouped() {
		t.Error("row should be ungrouped")
	}

	if err := f.mon.AssignToGroup("node:3000", g.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.mon.DeleteGroup(g.ID); err != nil {
		t.Fatal(err)
	}
	row, _ = rowByKey(f.mon.View(), "node:3000")
	if row.Grouped() {
		t.Error("deleting the group should ungroup its rows")
	}
}

func TestIgnoreProcessForgetsOriginatingKey(t *testing.T) {
	f := newFixture(t)
	f.src.add(100, "postgres", 5432, "postgres -D /data")
	f.src.add(200, "node", 3000, "")
	f.mon.Refresh()

	if err := f.mon.IgnoreProcess("postgres", "postgres:5432"); err != nil {
		t.Fatal(err)
	}
	v := f.mon.View()
	if _, ok := rowByKey(v, "postgres:5432"); ok {
		t.Error("ignored server still listed")
	}
	if _, ok := f.catalog.Lookup("postgres:5432"); ok {
		t.Error("ignored server still remembered")
	}
	if v.Total != 1 {
		t.Errorf("total = %d, want 1", v.Total)
	}

	f.mon.UnignoreProcess("postgres")
	if _, ok := rowByKey(f.mon.View(), "postgres:5432"); !ok {
		t.Error("unignored server should be discovered again")
	}
}

func TestIgnoreProcess_PollInFlightDoesNotRememberAgain(t *testing.T) {
	f := newFixture(t)
	f.src.add(100, "node", 3000, "node server.js")
	f.mon.Refresh()

	hold := make(chan struct{})
	entered := make(chan struct{})
	f.src.mu.Lock()
	f.src.hold, f.src.entered = hold, entered
	f.src.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.mon.Refresh()
	}()
	<-entered

	go func() {
		defer wg.Done()
		if err := f.mon.IgnoreProcess("node", "node:3000"); err != nil {
			t.Error(err)
		}
	}()
	waitFor(t, "node to be ignored", func() bool { return f.catalog.IsIgnored("node") })
	close(hold)
	wg.Wait()

	if _, ok := f.catalog.Lookup("node:3000"); ok {
		t.Error("poll that began before the ignore remembered the server again")
	}
	if _, ok := rowByKey(f.mon.Refresh(), "node:3000"); ok {
		t.Error("ignored server still listed")
	}
}

func TestForgetServer_RunningServerIsRememberedAgain(t *testing.T) {
	f := newFixture(t)
	f.src.add(100, "node", 3000, "node server.js")
	f.mon.Refresh()
	g, err := f.mon.CreateGroupAndAssign("Backend", "", "node:3000")
	if err != nil {
		t.Fatal(err)
	}

	f.mon.ForgetServer("node:3000")
	row, ok := rowByKey(f.mon.View(), "node:3000")
	if !ok || !row.Running {
		t.Fatalf("running server missing after forget: %+v (found %v)", row, ok)
	}
	if row.GroupID == g.ID {
		t.Error("forget should drop the group assignment")
	}
	if _, ok := f.catalog.Lookup("node:3000"); !ok {
		t.Error("running server was not remembered again")
	}

	// No further change in the process table: the row must not depend on
	// another poll to come back.
	f.mon.Refresh()
	if _, ok := rowByKey(f.mon.View(), "node:3000"); !ok {
		t.Error("row lost after refresh")
	}
}

func TestForgetServerDropsStoppedRow(t *testing.T) {
	f := newFixture(t)
	f.catalog.Remember(model.Remembered{ProcessName: "node", Port: 3000})
	f.mon.Refresh()

	f.mon.ForgetServer("node:3000")
	if v := f.mon.View(); v.Total != 0 {
		t.Fatalf("view after forget = %+v", v)
	}
	if v := f.mon.Refresh(); v.Total != 0 {
		t.Fatalf("forgotten server came back: %+v", v)
	}
}

func TestOnlyMonitoredFiltersNames(t *testing.T) {
	f := newFixture(t)
	f.mon.opts.OnlyMonitored = true
	f.src.add(100, "node", 3000, "")
	f.src.add(200, "python3", 8000, "")

	if v := f.mon.Refresh(); v.Total != 1 {
		t.Fatalf("only node should be discovered, got %+v", v)
	}
	if err := f.mon.MonitorName("python3"); err != nil {
		t.Fatal(err)
	}
	if v := f.mon.View(); v.Total != 2 {
		t.Fatalf("after MonitorName total = %d, want 2", v.Total)
	}
}

func TestStartPublishesToSubscribers(t *testing.T) {
	f := newFixture(t)
	f.src.add(100, "node", 3000, "")
	views, cancel := f.mon.Subscribe()
	defer cancel()

	f.mon.Start(context.Background())
	defer f.mon.Stop()

	waitFor(t, "a view with the running server", func() bool {
		select {
		case v := <-views:
			return v.Running == 1
		default:
			return false
		}
	})
	if st := f.mon.Status(); !st.Polling || st.Total != 1 {
		t.Errorf("status = %+v", st)
	}
}
