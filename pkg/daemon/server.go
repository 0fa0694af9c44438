package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/b/portkeeper/pkg/grouping"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// clientConn serializes writes to one connection
type clientConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

// Server is the daemon server that manages connected clients
type Server struct {
	socketPath string
	pidPath    string
	lock       *flock.Flock
	logger     *log.Logger

	listener  net.Listener
	clients   map[string]*clientConn // subscribed clients
	clientsMu sync.RWMutex
	done      chan struct{}
	stopOnce  sync.Once

	sequenceNum uint64
	seqMu       sync.Mutex

	// OnSnapshot returns the current list for a new subscriber
	OnSnapshot func() grouping.View

	// OnRequest runs an operator action. It is called on its own goroutine.
	OnRequest func(req RequestPayload) ResultPayload
}

// NewServer creates a daemon server for the given socket, pid and lock paths
func NewServer(socketPath, pidPath, lockPath string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{
		socketPath:  socketPath,
		pidPath:     pidPath,
		lock:        flock.New(lockPath),
		logger:      logger,
		clients:     make(map[string]*clientConn),
		done:        make(chan struct{}),
		sequenceNum: 1,
	}
}

// Start claims the single-instance lock and begins listening
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	if err := s.claim(); err != nil {
		return err
	}

	// Stale socket from a crashed daemon; safe once we hold the lock
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.release()
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		s.logger.Warn("chmod socket", "err", err)
	}
	s.listener = listener

	go s.acceptLoop()
	return nil
}

// claim takes the lock and then writes our pid
func (s *Server) claim() error {
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		if pid := ReadPid(s.pidPath); pid > 0 {
			return fmt.Errorf("%w with pid %d", ErrAlreadyRunning, pid)
		}
		return ErrAlreadyRunning
	}
	pid := os.Getpid()
	if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		s.lock.Unlock()
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

func (s *Server) release() {
	os.Remove(s.pidPath)
	s.lock.Unlock()
}

// ReadPid returns the pid in a pidfile, or 0.
func ReadPid(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// Stop shuts down the server and releases the lock
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.clientsMu.Lock()
		for id, client := range s.clients {
			client.conn.Close()
			delete(s.clients, id)
		}
		s.clientsMu.Unlock()
		os.Remove(s.socketPath)
		s.release()
	})
}

// ClientCount returns the number of subscribed clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.socketPath
}

// acceptLoop handles incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn("accept", "err", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go s.handleClient(conn)
	}
}

// handleClient processes messages from a client
func (s *Server) handleClient(conn net.Conn) {
	defer conn.Close()
	cc := &clientConn{conn: conn}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var clientID string

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Debug("bad message", "err", err)
			continue
		}

		switch msg.Type {
		case MsgSubscribe:
			if clientID == "" {
				clientID = msg.ClientID
				if clientID == "" {
					clientID = uuid.NewString()
				}
			}
			s.clientsMu.Lock()
			s.clients[clientID] = cc
			s.clientsMu.Unlock()
			s.logger.Debug("client subscribed", "client", clientID)
			if s.OnSnapshot != nil {
				s.sendSnapshot(cc, clientID, s.OnSnapshot())
			}

		case MsgUnsubscribe:
			s.removeClient(clientID)
			return

		case MsgRequest:
			var req RequestPayload
			if err := decodePayload(msg.Payload, &req); err != nil {
				s.sendMessage(cc, Message{Type: MsgResult, ID: msg.ID, Payload: ResultPayload{Error: "bad request: " + err.Error()}})
				continue
			}
			go s.handleRequest(cc, msg.ID, req)

		case MsgPing:
			s.sendMessage(cc, Message{Type: MsgPong, ID: msg.ID})
		}
	}

	// Client disconnected
	s.removeClient(clientID)
}

func (s *Server) removeClient(clientID string) {
	if clientID == "" {
		return
	}
	s.clientsMu.Lock()
	delete(s.clients, clientID)
	s.clientsMu.Unlock()
}

func (s *Server) handleRequest(cc *clientConn, id string, req RequestPayload) {
	result := ResultPayload{Error: "no request handler"}
	if s.OnRequest != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("request panic", "action", req.Action, "panic", r)
					result = ResultPayload{Error: fmt.Sprintf("internal error: %v", r)}
				}
			}()
			result = s.OnRequest(req)
		}()
	}
	if err := s.sendMessage(cc, Message{Type: MsgResult, ID: id, Payload: result}); err != nil {
		s.logger.Debug("send result", "action", req.Action, "err", err)
	}
}

// BroadcastSnapshot sends v to all subscribed clients
func (s *Server) BroadcastSnapshot(v grouping.View) {
	s.clientsMu.RLock()
	targets := make(map[string]*clientConn, len(s.clients))
	for id, cc := range s.clients {
		targets[id] = cc
	}
	s.clientsMu.RUnlock()

	for id, cc := range targets {
		s.sendSnapshot(cc, id, v)
	}
}

func (s *Server) sendSnapshot(cc *clientConn, clientID string, v grouping.View) {
	s.seqMu.Lock()
	seq := s.sequenceNum
	s.sequenceNum++
	s.seqMu.Unlock()

	msg := Message{
		Type:     MsgSnapshot,
		ClientID: clientID,
		Payload:  SnapshotPayload{SequenceNum: seq, View: v},
	}
	if err := s.sendMessage(cc, msg); err != nil {
		s.logger.Debug("dropping client", "client", clientID, "err", err)
		s.removeClient(clientID)
		cc.conn.Close()
	}
}

// sendMessage sends a message to a client
func (s *Server) sendMessage(cc *clientConn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	cc.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err = cc.conn.Write(append(data, '\n'))
	return err
}
