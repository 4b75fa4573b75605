package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	Command string
	Since   time.Time
}

// LockHeldError is returned when another process holds the profile lock.
type LockHeldError struct {
	Holder Holder
	Path   string
}

func (e *LockHeldError) Error() string {
	if e.Holder.Command != "" {
		return fmt.Sprintf("profile lock held by %s (PID %d) since %s (%s)",
			e.Holder.Command, e.Holder.PID, e.Holder.Since.Format(time.RFC3339), e.Path)
	}
	return fmt.Sprintf("profile lock held by PID %d (%s)", e.Holder.PID, e.Path)
}

// Lock represents an acquired profile lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive lock on the profile directory on behalf of
// command. Returns LockHeldError if another process already holds it.
func Acquire(profileDir, command string) (*Lock, error) {
	lockPath := filepath.Join(profileDir, "LOCK")

	if err := os.MkdirAll(profileDir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(lockPath)
		_ = f.Close()
		return nil, &LockHeldError{Holder: parseHolder(string(data)), Path: lockPath}
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\ncmd=%s\ntime=%s\n", os.Getpid(), command, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release releases the lock. Safe to call on nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parseHolder(content string) Holder {
	var h Holder
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "cmd":
			h.Command = value
		case "time":
			h.Since, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h
}
