package configkey

import (
	"fmt"
	"strings"
)

// CommandKind is one of the config-key commands.
type CommandKind uint8

const (
	CommandUnknown CommandKind = iota
	CommandGet
	CommandPut
	CommandDel
	CommandExists
	CommandList
	CommandDump
)

// CommandPrefix is accepted in front of every command name.
const CommandPrefix = "config-key"

var commandTable = map[string]CommandKind{
	"get":    CommandGet,
	"put":    CommandPut,
	"set":    CommandPut,
	"del":    CommandDel,
	"rm":     CommandDel,
	"exists": CommandExists,
	"list":   CommandList,
	"ls":     CommandList,
	"dump":   CommandDump,
}

func (k CommandKind) String() string {
	switch k {
	case CommandGet:
		return "get"
	case CommandPut:
		return "put"
	case CommandDel:
		return "del"
	case CommandExists:
		return "exists"
	case CommandList:
		return "list"
	case CommandDump:
		return "dump"
	default:
		return "unknown"
	}
}

// IsWrite reports whether the command mutates the store and therefore needs the leader.
func (k CommandKind) IsWrite() bool {
	return k == CommandPut || k == CommandDel
}

// Command is a parsed config-key request.
type Command struct {
	Kind CommandKind
	// Prefix is the command name as received.
	Prefix string
	// Key is the entry key, for dump the key prefix.
	Key string
	// Value is the payload of put, taken from the val argument or the request data.
	Value []byte
}

func (c Command) String() string {
	if c.Kind == CommandPut {
		return fmt.Sprintf("%s '%s' (%d bytes)", c.Kind, c.Key, len(c.Value))
	}
	return fmt.Sprintf("%s '%s'", c.Kind, c.Key)
}

// ParseKind resolves a command name with or without the "config-key" prefix.
func ParseKind(prefix string) CommandKind {
	name := strings.TrimSpace(prefix)
	if rest, ok := strings.CutPrefix(name, CommandPrefix); ok {
		if rest != "" && rest[0] != ' ' {
			return CommandUnknown
		}
		name = strings.TrimSpace(rest)
	}
	return commandTable[name]
}

// ParseCommand builds a command from its name, its arguments ("key" and "val") and the
// request's data payload. A "val" argument takes precedence over data.
func ParseCommand(prefix string, args map[string]string, data []byte) Command {
	cmd := Command{
		Kind:   ParseKind(prefix),
		Prefix: prefix,
		Key:    args["key"],
	}
	if cmd.Kind == CommandPut {
		if val, ok := args["val"]; ok {
			cmd.Value = []byte(val)
		} else if len(data) > 0 {
			cmd.Value = data
		}
	}
	return cmd
}
