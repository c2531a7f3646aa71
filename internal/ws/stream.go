// Package ws streams live tool output to websocket clients, one envelope
// per line.
package ws

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nebula-tools/nebulactl/internal/tools"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Streamer runs tools on behalf of websocket clients and relays their
// output as it is produced.
type Streamer struct {
	toolsDir string
	runner   *tools.Runner
}

func NewStreamer(toolsDir string, runner *tools.Runner) *Streamer {
	return &Streamer{toolsDir: toolsDir, runner: runner}
}

// ServeRun handles GET /tools/{name}/stream. Arguments arrive as repeated
// "arg" query parameters. The connection closes after the exit envelope.
func (s *Streamer) ServeRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	desc, err := tools.Find(s.toolsDir, name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A client hangup cancels the run so the child process group dies
	// with the connection.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	sw := &streamConn{conn: conn}
	result, err := s.runner.Run(ctx, *desc, tools.RunOptions{
		Args:   r.URL.Query()["arg"],
		Stdout: sw.writer("stdout"),
		Stderr: sw.writer("stderr"),
	})
	if err != nil {
		sw.send(TypeRunError, RunErrorPayload{Error: err.Error()})
		return
	}

	sw.send(TypeRunExit, RunExitPayload{
		ExitCode:   result.ExitCode,
		Terminated: result.Terminated,
		DurationMS: result.Duration.Milliseconds(),
	})
	sw.close()
}

// streamConn serializes envelope writes from the two drain goroutines.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *streamConn) send(msgType string, payload interface{}) {
	data, err := MakeEnvelope(msgType, payload)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("ws: write failed: %v", err)
	}
}

func (s *streamConn) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// writer adapts one output stream to envelope sends. The runner writes one
// line per call.
func (s *streamConn) writer(stream string) *lineWriter {
	return &lineWriter{conn: s, stream: stream}
}

type lineWriter struct {
	conn   *streamConn
	stream string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	line := strings.TrimSuffix(string(p), "\n")
	w.conn.send(TypeRunLine, RunLinePayload{Stream: w.stream, Line: line})
	return len(p), nil
}
