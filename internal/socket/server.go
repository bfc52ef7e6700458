package socket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

// Request carries one command to the daemon. The daemon sends any number of outputs
// on Reply and then closes it.
type Request struct {
	Command Command
	Reply   chan<- Output
}

type Server struct {
	path     string
	listener net.Listener
	requests chan<- Request

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// Listen binds the socket at path, removing a socket left behind by a previous run.
func Listen(path string, requests chan<- Request) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		log.Infof("previous socket detected at %s, removing", path)
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove previous socket %s: %w", path, err)
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind socket %s: %w", path, err)
	}

	return &Server{
		path:     path,
		listener: l,
		requests: requests,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

func (s *Server) Path() string {
	return s.path
}

// Serve accepts connections until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			log.Errorf("failed accepting socket connection: %v", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	log.Debug("socket connection accepted")
	defer log.Debug("socket connection closed")

	scanner := bufio.NewScanner(conn)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		log.Debug("message received on socket", "message", string(line))

		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			log.Warnf("invalid socket command: %v", err)
			if writeOutput(w, SingleError(Unexpected())) != nil || writeOutput(w, End("unknown")) != nil {
				return
			}
			continue
		}

		reply := make(chan Output, 4)
		select {
		case s.requests <- Request{Command: cmd, Reply: reply}:
		case <-ctx.Done():
			return
		}

	replies:
		for {
			select {
			case out, ok := <-reply:
				if !ok {
					break replies
				}
				if err := writeOutput(w, out); err != nil {
					log.Errorf("error writing to socket: %v", err)
					go drain(reply)
					return
				}
			case <-ctx.Done():
				return
			}
		}
		if err := writeOutput(w, End(cmd.String())); err != nil {
			log.Errorf("error writing to socket: %v", err)
			return
		}
	}
}

func drain(ch <-chan Output) {
	for range ch {
	}
}

func writeOutput(w *bufio.Writer, out Output) error {
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.Flush()
}

// Close stops accepting, closes open connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	err := s.listener.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// Collect sends cmd to the daemon over requests and gathers every output until the
// reply is closed. It is used by in-process callers such as the HTTP API.
func Collect(ctx context.Context, requests chan<- Request, cmd Command) ([]Output, error) {
	reply := make(chan Output, 4)
	select {
	case requests <- Request{Command: cmd, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var outputs []Output
	for {
		select {
		case out, ok := <-reply:
			if !ok {
				return outputs, nil
			}
			outputs = append(outputs, out)
		case <-ctx.Done():
			go drain(reply)
			return outputs, ctx.Err()
		}
	}
}
