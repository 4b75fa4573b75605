package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matheus3301/chatline/internal/config"
)

func TestDir(t *testing.T) {
	t.Setenv("CHATLINE_HOME", "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".chatline", "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPathsUnderProfile(t *testing.T) {
	t.Setenv("CHATLINE_HOME", t.TempDir())
	tests := []struct {
		name   string
		got    string
		suffix string
	}{
		{"lock", LockPath("test"), filepath.Join("profiles", "test", "LOCK")},
		{"store", StorePath("test"), filepath.Join("profiles", "test", "chatline.db")},
		{"log", LogPath("test"), filepath.Join("profiles", "test", "logs", "chatline.log")},
		{"env", EnvPath("test"), filepath.Join("profiles", "test", ".env")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasSuffix(tt.got, tt.suffix) {
				t.Errorf("path = %q, want suffix %q", tt.got, tt.suffix)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv("CHATLINE_HOME", t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	for _, d := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("CHATLINE_HOME", t.TempDir())

	if got := Resolve("work"); got != "work" {
		t.Errorf("Resolve(work) = %q, want work", got)
	}
	if got := Resolve(""); got != DefaultName {
		t.Errorf("Resolve() without config = %q, want %q", got, DefaultName)
	}

	if err := config.Save(ConfigPath(), &config.Config{DefaultProfile: "home"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "home" {
		t.Errorf("Resolve() with config = %q, want home", got)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CHATLINE_HOME", t.TempDir())
	t.Setenv(config.EnvUserID, "42")

	cfg := LoadConfig("main")
	if cfg.User.ID != "42" {
		t.Errorf("User.ID = %q, want 42", cfg.User.ID)
	}
	if cfg.Chat.QueueSize == 0 {
		t.Error("expected defaults when config file is missing")
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-profile", false},
		{"valid with underscore", "my_profile", false},
		{"valid max length", strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my profile", true},
		{"dot", "my.profile", true},
		{"too long", strings.Repeat("a", 65), true},
		{"slash", "my/profile", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
