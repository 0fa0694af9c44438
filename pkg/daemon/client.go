package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned for calls on a closed or disconnected client.
var ErrClosed = errors.New("daemon connection closed")

// RemoteError is an action the daemon rejected.
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Message)
}

// Client is a connection to the daemon. Requests may be issued from any
// goroutine; results are routed back by request id.
type Client struct {
	conn     net.Conn
	clientID string
	writeMu  sync.Mutex

	mu        sync.Mutex
	pending   map[string]chan Message
	snapshots chan SnapshotPayload
	lastSeq   uint64

	done     chan struct{}
	closeErr error
	once     sync.Once
}

// Dial connects to the daemon socket.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", socketPath, err)
	}
	c := &Client{
		conn:      conn,
		clientID:  uuid.NewString(),
		pending:   make(map[string]chan Message),
		snapshots: make(chan SnapshotPayload, 1),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection.
func (c *Client) Close() error {
	c.send(Message{Type: MsgUnsubscribe, ClientID: c.clientID})
	c.shutdown(nil)
	return nil
}

func (c *Client) shutdown(err error) {
	c.once.Do(func() {
		c.closeErr = err
		c.conn.Close()
		c.mu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(c.done)
	})
}

// Subscribe asks for snapshot pushes. A slow reader sees only the latest.
func (c *Client) Subscribe() (<-chan SnapshotPayload, error) {
	if err := c.send(Message{Type: MsgSubscribe, ClientID: c.clientID}); err != nil {
		return nil, err
	}
	return c.snapshots, nil
}

// Do sends a request and waits for its result.
func (c *Client) Do(ctx context.Context, req RequestPayload) (ResultPayload, error) {
	reply, err := c.roundTrip(ctx, Message{Type: MsgRequest, Payload: req})
	if err != nil {
		return ResultPayload{}, err
	}
	var result ResultPayload
	if err := decodePayload(reply.Payload, &result); err != nil {
		return ResultPayload{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

// Call runs req and decodes the result data into out, which may be nil.
// A rejected action comes back as a *RemoteError.
func (c *Client) Call(ctx context.Context, req RequestPayload, out interface{}) error {
	result, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if !result.OK {
		return &RemoteError{Action: req.Action, Message: result.Error}
	}
	if out == nil {
		return nil
	}
	return result.Decode(out)
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, Message{Type: MsgPing})
	return err
}

func (c *Client) roundTrip(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.NewString()
	msg.ClientID = c.clientID
	ch := make(chan Message, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return Message{}, ErrClosed
	default:
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.send(msg); err != nil {
		return Message{}, err
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, ErrClosed
		}
		return reply, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *Client) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		switch msg.Type {
		case MsgSnapshot:
			var snap SnapshotPayload
			if decodePayload(msg.Payload, &snap) != nil {
				continue
			}
			c.deliverSnapshot(snap)
		case MsgResult, MsgPong:
			c.mu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				select {
				case ch <- msg:
				default:
				}
			}
			c.mu.Unlock()
		}
	}
	c.shutdown(scanner.Err())
}

// deliverSnapshot replaces any unread snapshot and drops stale ones.
func (c *Client) deliverSnapshot(snap SnapshotPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.SequenceNum <= c.lastSeq {
		return
	}
	c.lastSeq = snap.SequenceNum
	select {
	case <-c.snapshots:
	default:
	}
	select {
	case c.snapshots <- snap:
	default:
	}
}
