// Package message defines the direct message model and the thread projection
// built from it.
package message

import "time"

// PreviewLimit is the rune budget for thread preview text.
const PreviewLimit = 25

// Message is a direct message between two users. File holds a media URL; a
// message may carry text, a file, or both.
type Message struct {
	ID       string `bson:"_id" json:"_id"`
	Sender   string `bson:"sender" json:"sender"`
	Receiver string `bson:"receiver" json:"receiver"`
	Text     string `bson:"text" json:"text"`
	File     string `bson:"file,omitempty" json:"file,omitempty"`
	Read     bool   `bson:"read" json:"read"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Preview returns the thread list preview for the message: text truncated to
// PreviewLimit runes with an ellipsis, or a placeholder for media-only
// messages.
func (m Message) Preview() string {
	if m.Text == "" {
		if m.File != "" {
			return "(attachment)"
		}
		return ""
	}
	runes := []rune(m.Text)
	if len(runes) <= PreviewLimit {
		return m.Text
	}
	return string(runes[:PreviewLimit]) + "..."
}

// Thread summarizes the latest exchange with one conversation partner.
type Thread struct {
	PartnerID   string    `json:"partnerId"`
	Username    string    `json:"username"`
	ProfilePic  string    `json:"profilePic"`
	LastMessage string    `json:"lastMessage"`
	UnreadCount int       `json:"unreadCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
