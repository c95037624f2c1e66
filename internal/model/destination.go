package model

import (
	"fmt"
	"strings"
)

// Destination identifies a chat and an optional sub-thread inside it.
type Destination struct {
	ChatID   string
	ThreadID string
}

// IsZero reports whether no chat is set.
func (d Destination) IsZero() bool {
	return d.ChatID == ""
}

// String renders the destination as "chat" or "chat:thread".
func (d Destination) String() string {
	if d.ThreadID == "" {
		return d.ChatID
	}
	return d.ChatID + ":" + d.ThreadID
}

// ParseDestination is the inverse of String.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, fmt.Errorf("empty destination")
	}
	chat, thread, _ := strings.Cut(raw, ":")
	chat = strings.TrimSpace(chat)
	thread = strings.TrimSpace(thread)
	if chat == "" {
		return Destination{}, fmt.Errorf("destination %q has no chat", raw)
	}
	return Destination{ChatID: chat, ThreadID: thread}, nil
}
