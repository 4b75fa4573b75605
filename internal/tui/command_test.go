package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"quit", Command{Name: CmdQuit}},
		{"q", Command{Name: CmdQuit}},
		{"  Chat   bob smith ", Command{Name: CmdChat, Args: "bob smith"}},
		{"attach /tmp/a file.txt", Command{Name: CmdAttach, Args: "/tmp/a file.txt"}},
		{"h", Command{Name: CmdHelp}},
		{"add alice", Command{Name: CmdAdd, Args: "alice"}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.input); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestCommandValidate(t *testing.T) {
	tests := []struct {
		input   string
		wantErr string
	}{
		{"reload", ""},
		{"qr", ""},
		{"chat bob", ""},
		{"chat", "usage: :chat <name>"},
		{"attach", "usage: :attach <path>"},
		{"add", "usage: :add <username>"},
		{"logout", "unknown command: logout"},
	}
	for _, tt := range tests {
		err := ParseCommand(tt.input).Validate()
		switch {
		case tt.wantErr == "" && err != nil:
			t.Errorf("%q: unexpected error %v", tt.input, err)
		case tt.wantErr != "" && (err == nil || err.Error() != tt.wantErr):
			t.Errorf("%q: error = %v, want %q", tt.input, err, tt.wantErr)
		}
	}
}
