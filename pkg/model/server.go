// Package model holds the server records shared by discovery, the catalog
// and the reconciler.
package model

import (
	"strconv"
	"strings"
	"time"
)

// PlaceholderPID marks a record synthesized for a remembered server that is
// not currently running.
const PlaceholderPID = 0

// Record is one (process, listening port) pair observed during a poll.
type Record struct {
	PID              int       `json:"pid"`
	Name             string    `json:"name"`
	Port             int       `json:"port"`
	ExecutablePath   string    `json:"executable_path,omitempty"`
	StartTime        time.Time `json:"start_time,omitempty"`
	CommandLine      string    `json:"command_line,omitempty"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
}

// Key returns the stable identity of the record.
func (r Record) Key() string {
	return Key(r.Name, r.Port)
}

// Equal reports whether two records describe the same process and port.
// Name and path are invariant for a given PID and are not compared.
func (r Record) Equal(o Record) bool {
	return r.PID == o.PID && r.Port == o.Port
}

// Key builds a server key: lowercase(name) + ":" + port.
func Key(name string, port int) string {
	return strings.ToLower(name) + ":" + strconv.Itoa(port)
}

// NormalizeKey canonicalizes an operator supplied key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// ParseKey splits a server key into its name and port.
func ParseKey(key string) (name string, port int, ok bool) {
	key = NormalizeKey(key)
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return "", 0, false
	}
	port, err := strconv.Atoi(key[i+1:])
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false
	}
	return key[:i], port, true
}

// ListsEqual reports whether a and b have the same length and are
// element-wise Equal. Lists produced by the correlator are sorted by port,
// which makes this set equality on (PID, Port).
func ListsEqual(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Remembered is a persisted server identity that outlives its process.
type Remembered struct {
	ProcessName      string `yaml:"processName" json:"process_name"`
	Port             int    `yaml:"port" json:"port"`
	CommandLine      string `yaml:"commandLine,omitempty" json:"command_line,omitempty"`
	WorkingDirectory string `yaml:"workingDirectory,omitempty" json:"working_directory,omitempty"`
}

// Key returns the stable identity of the remembered server.
func (r Remembered) Key() string {
	return Key(r.ProcessName, r.Port)
}

// Placeholder synthesizes a stopped Record from the remembered identity.
func (r Remembered) Placeholder() Record {
	return Record{
		PID:              PlaceholderPID,
		Name:             r.ProcessName,
		Port:             r.Port,
		CommandLine:      r.CommandLine,
		WorkingDirectory: r.WorkingDirectory,
	}
}

// Group is a user-defined server group.
type Group struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

// Assignment places a server key in a group. At most one per key.
type Assignment struct {
	ServerKey string `yaml:"serverKey" json:"server_key"`
	GroupID   string `yaml:"groupId" json:"group_id"`
}
