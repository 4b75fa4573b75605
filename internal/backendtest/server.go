// Package backendtest runs an in-process chat backend for tests: the REST
// history, upload and friend endpoints plus the realtime websocket.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/chatline/internal/chat"
)

// SocketPath is the websocket endpoint path.
const SocketPath = "/socket"

// PageSize bounds /get_messages responses.
const PageSize = 20

// Server is a fake chat backend bound to a loopback listener.
type Server struct {
	*httptest.Server

	// Joins receives the user id of every join_user event.
	Joins chan string
	// Sends receives every send_message payload.
	Sends chan chat.SendPayload

	mu           sync.Mutex
	conns        map[*websocket.Conn]struct{}
	history      map[string][]chat.WireMessage
	historyCode  int
	historyDelay time.Duration
	socketDown   bool
	echo         bool
	closed       bool
	lastJoin     string
	nextID       int
	cookies      []string
	uploads      []string
	uploadCode   int
	uploadReason string
	friends      []string
	wg           sync.WaitGroup
	upgrader     websocket.Upgrader
}

// New starts a backend that is shut down when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		Joins:   make(chan string, 64),
		Sends:   make(chan chat.SendPayload, 64),
		conns:   make(map[*websocket.Conn]struct{}),
		history: make(map[string][]chat.WireMessage),
		nextID:  1000,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recordCookie)
	r.Get(SocketPath, s.handleSocket)
	r.Get("/get_messages", s.handleHistory)
	r.Post("/upload_attachment", s.handleUpload)
	r.Post("/add_friend", s.handleAddFriend)
	r.Get("/download_attachment/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "attachment "+chi.URLParam(r, "id"))
	})
	return r
}

// Close drops every websocket, waits for their handlers and stops the listener.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.DropConnections()
	s.wg.Wait()
	s.Server.Close()
}

// SetHistory replaces the stored conversation with contactID. Messages are
// kept in the given order, which should be ascending.
func (s *Server) SetHistory(contactID string, msgs ...chat.WireMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[contactID] = slices.Clone(msgs)
}

// FailHistory makes /get_messages answer with code; 0 restores normal replies.
func (s *Server) FailHistory(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyCode = code
}

// DelayHistory holds every /get_messages reply for d.
func (s *Server) DelayHistory(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyDelay = d
}

// RejectUploads makes /upload_attachment answer with code and reason; code 0
// restores normal replies.
func (s *Server) RejectUploads(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadCode = code
	s.uploadReason = reason
}

// SetSocketDown makes the websocket endpoint refuse upgrades.
func (s *Server) SetSocketDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socketDown = down
}

// EchoSends makes every send_message come back to all peers as new_message
// with a server id, the way the real backend notifies both parties.
func (s *Server) EchoSends(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echo = on
}

// Push writes an event to every connected client.
func (s *Server) Push(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	frame := chat.Envelope{Event: event, Data: raw}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.WriteJSON(frame)
	}
}

// PushRaw writes a raw text frame to every connected client.
func (s *Server) PushRaw(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// DropConnections closes every websocket without a close handshake.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// ConnCount returns the number of live websocket connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Cookies returns the Cookie header of every request received so far.
func (s *Server) Cookies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cookies)
}

// Uploads returns the filenames received by /upload_attachment.
func (s *Server) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.uploads)
}

// Friends returns the usernames received by /add_friend.
func (s *Server) Friends() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.friends)
}

func (s *Server) recordCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.cookies = append(s.cookies, r.Header.Get("Cookie"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	down := s.socketDown || s.closed
	s.mu.Unlock()
	if down {
		http.Error(w, "realtime service unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		s.wg.Done()
	}()

	for {
		var env chat.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case chat.EventJoinUser:
			var p chat.JoinPayload
			if json.Unmarshal(env.Data, &p) != nil {
				continue
			}
			s.mu.Lock()
			s.lastJoin = p.UserID
			s.mu.Unlock()
			select {
			case s.Joins <- p.UserID:
			default:
			}
		case chat.EventSendMessage:
			var p chat.SendPayload
			if json.Unmarshal(env.Data, &p) != nil {
				continue
			}
			select {
			case s.Sends <- p:
			default:
			}
			s.echoSend(p)
		}
	}
}

func (s *Server) echoSend(p chat.SendPayload) {
	s.mu.Lock()
	if !s.echo {
		s.mu.Unlock()
		return
	}
	s.nextID++
	id := strconv.Itoa(s.nextID)
	sender := s.lastJoin
	s.mu.Unlock()

	// The sender is the user that last joined.
	s.Push(chat.EventNewMessage, chat.WireMessage{
		ID:          chat.ID(id),
		SenderID:    chat.ID(sender),
		RecipientID: chat.ID(p.RecipientID),
		Content:     p.Content,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Attachment:  p.Attachment,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	code, delay := s.historyCode, s.historyDelay
	msgs := slices.Clone(s.history[r.URL.Query().Get("contact_id")])
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if code != 0 {
		http.Error(w, "history unavailable", code)
		return
	}

	if before := r.URL.Query().Get("before"); before != "" {
		idx := slices.IndexFunc(msgs, func(m chat.WireMessage) bool { return string(m.ID) == before })
		if idx < 0 {
			msgs = nil
		} else {
			msgs = msgs[:idx]
		}
	}
	if len(msgs) > PageSize {
		msgs = msgs[len(msgs)-PageSize:]
	}
	if msgs == nil {
		msgs = []chat.WireMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	code, reason := s.uploadCode, s.uploadReason
	s.mu.Unlock()
	if code != 0 {
		writeJSON(w, code, map[string]any{"success": false, "error": reason})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "no file provided"})
		return
	}
	defer func() { _ = file.Close() }()
	if header.Filename == "" || header.Size == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "empty file"})
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, header.Filename)
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"file":    map[string]any{"id": id, "filename": header.Filename},
	})
}

func (s *Server) handleAddFriend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "username required"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.friends, req.Username) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "already friends"})
		return
	}
	s.friends = append(s.friends, req.Username)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
