package daemon

import (
	"encoding/json"
	"time"

	"github.com/b/portkeeper/pkg/grouping"
)

// MessageType identifies the type of message
type MessageType string

const (
	MsgSubscribe   MessageType = "subscribe"
	MsgUnsubscribe MessageType = "unsubscribe"
	MsgSnapshot    MessageType = "snapshot" // Daemon -> client: presentation list
	MsgRequest     MessageType = "request"  // Client -> daemon: operator action
	MsgResult      MessageType = "result"   // Daemon -> client: action outcome
	MsgPing        MessageType = "ping"
	MsgPong        MessageType = "pong"
)

// Message is the envelope for daemon<->client communication. ID pairs a
// request with its result.
type Message struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"client_id,omitempty"`
	ID       string      `json:"id,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}

// Action names accepted in a RequestPayload.
const (
	ActionRefresh       = "refresh"
	ActionTerminate     = "terminate"
	ActionStart         = "start"
	ActionAssign        = "assign"
	ActionUnassign      = "unassign"
	ActionCreateGroup   = "create_group"
	ActionUpdateGroup   = "update_group"
	ActionDeleteGroup   = "delete_group"
	ActionIgnore        = "ignore"
	ActionUnignore      = "unignore"
	ActionForget        = "forget"
	ActionListGroups    = "list_groups"
	ActionMonitorName   = "monitor_name"
	ActionUnmonitorName = "unmonitor_name"
	ActionStatus        = "status"
)

// RequestPayload carries one operator action. Which fields matter depends
// on Action.
type RequestPayload struct {
	Action           string  `json:"action"`
	Key              string  `json:"key,omitempty"`
	PID              int     `json:"pid,omitempty"`
	TimeoutMS        int     `json:"timeout_ms,omitempty"`
	Wait             bool    `json:"wait,omitempty"` // terminate: reply after the escalation ends
	CommandLine      string  `json:"command_line,omitempty"`
	WorkingDirectory string  `json:"working_directory,omitempty"`
	GroupID          string  `json:"group_id,omitempty"`
	Name             string  `json:"name,omitempty"`
	Color            string  `json:"color,omitempty"`
	AssignKey        string  `json:"assign_key,omitempty"` // create_group: server to place in the new group
	Rename           *string `json:"rename,omitempty"`     // update_group
	Recolor          *string `json:"recolor,omitempty"`    // update_group
}

// Timeout converts TimeoutMS; zero means the daemon default.
func (r RequestPayload) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// ResultPayload is the outcome of a request.
type ResultPayload struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Decode re-reads Data into dst.
func (r ResultPayload) Decode(dst interface{}) error {
	return decodePayload(r.Data, dst)
}

// SnapshotPayload is the presentation list pushed to subscribers.
type SnapshotPayload struct {
	SequenceNum uint64        `json:"seq"` // Monotonic sequence for ordering
	View        grouping.View `json:"view"`
}

// TerminateData is the data of a terminate result.
type TerminateData struct {
	PID     int    `json:"pid"`
	Stage   string `json:"stage"`
	Pending bool   `json:"pending,omitempty"`
}

// StartData is the data of a start result.
type StartData struct {
	PID     int    `json:"pid"`
	LogPath string `json:"log_path,omitempty"`
}

// decodePayload converts a generically decoded payload into dst.
func decodePayload(src, dst interface{}) error {
	if src == nil {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
