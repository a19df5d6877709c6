package bus

import "fmt"

// MessageRef identifies one chat message. Both parts are platform-assigned and opaque.
type MessageRef struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

func (r MessageRef) String() string {
	return fmt.Sprintf("%s/%s", r.ChannelID, r.MessageID)
}

// IsZero reports whether the reference is unset.
func (r MessageRef) IsZero() bool {
	return r.ChannelID == "" && r.MessageID == ""
}

type MessageKind string

const (
	MessageCreated MessageKind = "created"
	MessageEdited  MessageKind = "edited"
	MessageDeleted MessageKind = "deleted"
)

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Bot  bool   `json:"bot,omitempty"`
}

// Reaction is one emoji annotation on a message. Self marks reactions placed by this bot.
type Reaction struct {
	Emoji string `json:"emoji"`
	Self  bool   `json:"self,omitempty"`
}

// InboundMessage is one create/edit/delete event delivered by a channel adapter.
type InboundMessage struct {
	Kind      MessageKind       `json:"kind"`
	Channel   string            `json:"channel"`
	Ref       MessageRef        `json:"ref"`
	Author    Author            `json:"author"`
	Content   string            `json:"content"`
	Reactions []Reaction        `json:"reactions,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DirectMessage is a private note to an author. Code is shown as a preformatted block between
// Text and Footer when non-empty.
type DirectMessage struct {
	Text   string `json:"text"`
	Code   string `json:"code,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// PlainText flattens the message using fenced code markup, for transports without rich text.
func (m DirectMessage) PlainText() string {
	out := m.Text
	if m.Code != "" {
		out += "\n```\n" + m.Code + "\n```"
	}
	if m.Footer != "" {
		out += "\n" + m.Footer
	}

	return out
}
