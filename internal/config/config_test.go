package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.User = UserConfig{ID: "7", Username: "zh"}
	cfg.Chat.FetchTimeout = 3 * time.Second
	cfg.Contacts = []ContactSeed{{ID: "8", Name: "Alice"}}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.User.ID != "7" {
		t.Errorf("User.ID = %q, want 7", loaded.User.ID)
	}
	if loaded.Chat.FetchTimeout != 3*time.Second {
		t.Errorf("FetchTimeout = %v, want 3s", loaded.Chat.FetchTimeout)
	}
	if len(loaded.Contacts) != 1 || loaded.Contacts[0].Name != "Alice" {
		t.Errorf("Contacts = %+v, want one Alice", loaded.Contacts)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[server]\nbase_url = \"http://chat.example\"\n[chat]\nqueue_size = 0\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.BaseURL != "http://chat.example" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Chat.QueueSize != 256 {
		t.Errorf("QueueSize = %d, want default 256", cfg.Chat.QueueSize)
	}
	if cfg.Chat.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.Chat.FetchTimeout)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestApplyEnv(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(dotenv, []byte("CHATLINE_USERNAME=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvServerURL, "http://override")
	t.Setenv(EnvUserID, "99")
	t.Setenv(EnvUsername, "")
	os.Unsetenv(EnvUsername)
	t.Setenv(EnvCookie, "session=abc")

	cfg := Default()
	cfg.ApplyEnv(dotenv, filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Server.BaseURL != "http://override" {
		t.Errorf("BaseURL = %q, want http://override", cfg.Server.BaseURL)
	}
	if cfg.User.ID != "99" {
		t.Errorf("User.ID = %q, want 99", cfg.User.ID)
	}
	if cfg.User.Username != "from-dotenv" {
		t.Errorf("Username = %q, want from-dotenv", cfg.User.Username)
	}
	if cfg.Server.Cookie != "session=abc" {
		t.Errorf("Cookie = %q", cfg.Server.Cookie)
	}
}

func TestLocation(t *testing.T) {
	cfg := Default()
	if cfg.Location() != time.Local {
		t.Error("default timezone should be Local")
	}
	cfg.Chat.Timezone = "UTC"
	if cfg.Location().String() != "UTC" {
		t.Errorf("Location() = %v, want UTC", cfg.Location())
	}
	cfg.Chat.Timezone = "Not/AZone"
	if cfg.Location() != time.Local {
		t.Error("unknown timezone should fall back to Local")
	}
}
