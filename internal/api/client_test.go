package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatline/internal/backendtest"
	"github.com/matheus3301/chatline/internal/chat"
)

func wire(id, sender, recipient, ts string) chat.WireMessage {
	return chat.WireMessage{
		ID: chat.ID(id), SenderID: chat.ID(sender), RecipientID: chat.ID(recipient),
		Content: "m" + id, Timestamp: ts,
	}
}

func newClient(srv *backendtest.Server, timeout time.Duration) *Client {
	return NewClient(Options{BaseURL: srv.URL, Cookie: "session=abc", Timeout: timeout}, nil)
}

func TestFetchInitial(t *testing.T) {
	srv := backendtest.New(t)
	srv.SetHistory("8",
		wire("1", "8", "7", "2024-05-01T10:00:00Z"),
		wire("2", "7", "8", "2024-05-01T10:01:00Z"),
	)
	c := newClient(srv, time.Second)

	msgs, err := c.FetchInitial(context.Background(), "8")
	if err != nil {
		t.Fatalf("FetchInitial() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "1" || msgs[1].ID != "2" {
		t.Fatalf("FetchInitial() = %+v", msgs)
	}
	if got := srv.Cookies(); len(got) != 1 || got[0] != "session=abc" {
		t.Errorf("cookies = %v", got)
	}
}

func TestFetchBefore(t *testing.T) {
	srv := backendtest.New(t)
	var all []chat.WireMessage
	for i := 1; i <= 30; i++ {
		ts := time.Date(2024, 5, 1, 10, i, 0, 0, time.UTC).Format(time.RFC3339)
		all = append(all, wire(strconv.Itoa(i), "8", "7", ts))
	}
	srv.SetHistory("8", all...)
	c := newClient(srv, time.Second)

	first, err := c.FetchInitial(context.Background(), "8")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != backendtest.PageSize || first[0].ID != "11" {
		t.Fatalf("initial page starts at %q with %d items", first[0].ID, len(first))
	}

	older, err := c.FetchBefore(context.Background(), "8", first[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(older) != 10 || older[0].ID != "1" || older[9].ID != "10" {
		t.Fatalf("older page = %d items", len(older))
	}

	oldest, err := c.FetchBefore(context.Background(), "8", "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(oldest) != 0 {
		t.Errorf("expected empty page before the first message, got %d", len(oldest))
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*backendtest.Server)
	}{
		{"server error", func(s *backendtest.Server) { s.FailHistory(http.StatusInternalServerError) }},
		{"timeout", func(s *backendtest.Server) { s.DelayHistory(500 * time.Millisecond) }},
		{"malformed entry", func(s *backendtest.Server) {
			s.SetHistory("8",
				wire("1", "8", "7", "2024-05-01T10:00:00Z"),
				wire("", "8", "7", "2024-05-01T10:01:00Z"),
			)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendtest.New(t)
			tt.setup(srv)
			c := newClient(srv, 100*time.Millisecond)

			msgs, err := c.FetchInitial(context.Background(), "8")
			if !errors.Is(err, chat.ErrHistoryFetchFailed) {
				t.Fatalf("error = %v, want ErrHistoryFetchFailed", err)
			}
			if msgs != nil {
				t.Errorf("partial page returned: %+v", msgs)
			}
		})
	}
}

func TestFetchTimeoutIsDeadline(t *testing.T) {
	srv := backendtest.New(t)
	srv.DelayHistory(500 * time.Millisecond)
	c := newClient(srv, 50*time.Millisecond)

	_, err := c.FetchBefore(context.Background(), "8", "5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestUploadAttachment(t *testing.T) {
	srv := backendtest.New(t)
	c := newClient(srv, time.Second)

	att, err := c.UploadAttachment(context.Background(), "/tmp/report.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("UploadAttachment() error = %v", err)
	}
	if att.ID == "" || att.Filename != "report.pdf" {
		t.Errorf("attachment = %+v", att)
	}
	if att.URL != srv.URL+"/download_attachment/"+att.ID {
		t.Errorf("URL = %q", att.URL)
	}
	if got := srv.Uploads(); len(got) != 1 || got[0] != "report.pdf" {
		t.Errorf("server uploads = %v", got)
	}
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name       string
		file       string
		body       string
		code       int
		reason     string
		wantReason string
	}{
		{name: "empty file", file: "empty.txt", wantReason: "empty file"},
		{name: "non-2xx with reason", file: "a.exe", body: "MZ", code: http.StatusBadRequest, reason: "file type not allowed", wantReason: "file type not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backendtest.New(t)
			srv.RejectUploads(tt.code, tt.reason)
			c := newClient(srv, time.Second)

			_, err := c.UploadAttachment(context.Background(), tt.file, strings.NewReader(tt.body))
			var upErr *chat.UploadError
			if !errors.As(err, &upErr) {
				t.Fatalf("error = %v, want UploadError", err)
			}
			if upErr.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", upErr.Reason, tt.wantReason)
			}
			if !errors.Is(err, chat.ErrUploadFailed) {
				t.Error("UploadError should wrap ErrUploadFailed")
			}
		})
	}
}

func TestUploadServerErrorWithoutReason(t *testing.T) {
	srv := backendtest.New(t)
	srv.RejectUploads(http.StatusInternalServerError, "")
	c := newClient(srv, time.Second)

	_, err := c.UploadAttachment(context.Background(), "a.txt", strings.NewReader("x"))
	var upErr *chat.UploadError
	if errors.As(err, &upErr) {
		t.Fatalf("error = %v, want a plain status error", err)
	}
	if !errors.Is(err, chat.ErrUploadFailed) {
		t.Errorf("error = %v, want ErrUploadFailed", err)
	}
}

func TestUploadFile(t *testing.T) {
	srv := backendtest.New(t)
	c := newClient(srv, time.Second)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	att, err := c.UploadFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if att.Filename != "notes.txt" {
		t.Errorf("Filename = %q", att.Filename)
	}

	if _, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing")); !errors.Is(err, chat.ErrUploadFailed) {
		t.Errorf("missing file error = %v, want ErrUploadFailed", err)
	}
}

func TestAddFriend(t *testing.T) {
	srv := backendtest.New(t)
	c := newClient(srv, time.Second)

	if err := c.AddFriend(context.Background(), "bob"); err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}
	err := c.AddFriend(context.Background(), "bob")
	if err == nil || !strings.Contains(err.Error(), "already friends") {
		t.Errorf("second AddFriend() error = %v, want already friends", err)
	}
	err = c.AddFriend(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "username required") {
		t.Errorf("empty AddFriend() error = %v", err)
	}
}
