package tui

import (
	"fmt"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// Command names accepted in command mode. Aliases map to these.
const (
	CmdChat   = "chat"
	CmdAttach = "attach"
	CmdAdd    = "add"
	CmdOlder  = "older"
	CmdReload = "reload"
	CmdLink   = "link"
	CmdQR     = "qr"
	CmdHelp   = "help"
	CmdQuit   = "quit"
)

var aliases = map[string]string{
	"c": CmdChat,
	"a": CmdAttach,
	"h": CmdHelp,
	"q": CmdQuit,
	"o": CmdOlder,
}

// requiresArgs lists the commands that take a mandatory argument.
var requiresArgs = map[string]string{
	CmdChat:   "name",
	CmdAttach: "path",
	CmdAdd:    "username",
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if alias, ok := aliases[cmd.Name]; ok {
		cmd.Name = alias
	}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Validate reports unknown commands and missing arguments.
func (c Command) Validate() error {
	switch c.Name {
	case CmdChat, CmdAttach, CmdAdd, CmdOlder, CmdReload, CmdLink, CmdQR, CmdHelp, CmdQuit:
	default:
		return fmt.Errorf("unknown command: %s", c.Name)
	}
	if arg, ok := requiresArgs[c.Name]; ok && c.Args == "" {
		return fmt.Errorf("usage: :%s <%s>", c.Name, arg)
	}
	return nil
}
