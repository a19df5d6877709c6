package chat

import (
	"errors"
	"strings"
)

type commandKind int

const (
	commandPost commandKind = iota
	commandEdit
	commandDelete
	commandExit
)

type command struct {
	kind commandKind
	id   string
	text string
}

// parseCommand interprets one line of input: "/edit <id> <text>", "/delete <id>", an exit word,
// or a message to post.
func parseCommand(input string) (command, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return command{}, errors.New("empty input")
	}
	if isExitCommand(trimmed) {
		return command{kind: commandExit}, nil
	}

	switch {
	case trimmed == "/edit" || strings.HasPrefix(trimmed, "/edit "):
		id, text, _ := strings.Cut(strings.TrimSpace(strings.TrimPrefix(trimmed, "/edit")), " ")
		text = strings.TrimSpace(text)
		if id == "" || text == "" {
			return command{}, errors.New("usage: /edit <id> <text>")
		}
		return command{kind: commandEdit, id: id, text: text}, nil
	case trimmed == "/delete" || strings.HasPrefix(trimmed, "/delete "):
		id := strings.TrimSpace(strings.TrimPrefix(trimmed, "/delete"))
		if id == "" || strings.Contains(id, " ") {
			return command{}, errors.New("usage: /delete <id>")
		}
		return command{kind: commandDelete, id: id}, nil
	}

	return command{kind: commandPost, text: trimmed}, nil
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
