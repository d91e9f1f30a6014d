package tui

import "strings"

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Canonical command names.
const (
	CmdChat    = "chat"
	CmdImage   = "image"
	CmdMore    = "more"
	CmdReply   = "reply"
	CmdRefresh = "refresh"
	CmdLogout  = "logout"
	CmdHelp    = "help"
	CmdQuit    = "quit"
)

var aliases = map[string]string{
	"c":  CmdChat,
	"o":  CmdChat,
	"i":  CmdImage,
	"m":  CmdMore,
	"r":  CmdReply,
	"h":  CmdHelp,
	"q":  CmdQuit,
	"q!": CmdQuit,
}

// Canonical resolves aliases. A trailing '!' on reply asks for fresh
// suggestions and is reported through force.
func (c Command) Canonical() (name string, force bool) {
	name = c.Name
	if name == "reply!" || name == "r!" {
		return CmdReply, true
	}
	if full, ok := aliases[name]; ok {
		name = full
	}
	return name, false
}
