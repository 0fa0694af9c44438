package perf

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestTrackWritesWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	SetOutputForTest(&buf)
	defer SetOutputForTest(nil)

	d := Track("poll", func() { time.Sleep(time.Millisecond) })
	if d < time.Millisecond {
		t.Errorf("Track() = %v, want >= 1ms", d)
	}
	if !strings.Contains(buf.String(), "poll: ") {
		t.Errorf("perf log missing entry: %q", buf.String())
	}
}

func TestLogSilentWhenDisabled(t *testing.T) {
	SetOutputForTest(nil)
	Log("should not appear %d", 1)
	if IsEnabled() {
		t.Error("IsEnabled() = true after disabling")
	}
}
