package transport

import (
	"context"
	"errors"
)

// ErrNotRunning is returned by adapters asked to send before Start.
var ErrNotRunning = errors.New("transport not running")

type UpdateKind string

const (
	UpdateGroupMessage UpdateKind = "group_message"
)

// Update is an inbound event from the chat network.
type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is a text message received in a group.
type Message struct {
	ID             int
	GroupID        string
	SenderID       string
	SenderNickname string
	Text           string
}

// Sender delivers rendered text to one group.
type Sender interface {
	SendGroupMessage(ctx context.Context, groupID string, text string) error
}

// Adapter is a chat network connection: inbound updates plus outbound sends.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	// SelfID identifies the bot account so its own messages can be ignored.
	SelfID() string
}
