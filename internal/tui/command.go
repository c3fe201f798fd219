package tui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/wppcrm/internal/store"
)

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

// aliases map short forms to canonical command names.
var aliases = map[string]string{
	"q":    "quit",
	"h":    "help",
	"s":    "search",
	"c":    "chat",
	"r":    "refresh",
	"st":   "status",
	"t":    "tags",
	"n":    "note",
	"exit": "quit",
}

// needsConversation lists the commands that act on the open conversation.
var needsConversation = map[string]bool{
	"bot":     true,
	"assign":  true,
	"release": true,
	"status":  true,
	"tags":    true,
	"note":    true,
}

// Canonical resolves aliases and checks the arguments of known commands.
func (c Command) Canonical() (Command, error) {
	if name, ok := aliases[c.Name]; ok {
		c.Name = name
	}
	switch c.Name {
	case "quit", "help", "refresh", "release", "pair", "logout", "assign":
	case "search", "chat", "note":
		if c.Args == "" {
			return c, fmt.Errorf(":%s needs an argument", c.Name)
		}
	case "bot":
		switch c.Args {
		case "", "on", "off":
		default:
			return c, fmt.Errorf(":bot takes on or off, got %q", c.Args)
		}
	case "status":
		if !store.ValidStatus(c.Args) {
			return c, fmt.Errorf(":status takes open, pending or closed, got %q", c.Args)
		}
	case "tags":
	default:
		return c, fmt.Errorf("unknown command %q", c.Name)
	}
	return c, nil
}

// NeedsConversation reports whether the command acts on the open conversation.
func (c Command) NeedsConversation() bool {
	return needsConversation[c.Name]
}

// Tags splits a comma or space separated tag list. An empty list clears the tags.
func (c Command) Tags() []string {
	fields := strings.FieldsFunc(c.Args, func(r rune) bool { return r == ',' || r == ' ' })
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		tags = append(tags, strings.ToLower(f))
	}
	return tags
}
