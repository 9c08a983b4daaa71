package discord

import "encoding/json"

// Pin is a pinned message as returned by the pins endpoint. Only the fields
// the archiver or the index use are decoded; the full payload is kept in
// PinList.Raw.
type Pin struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Content     string       `json:"content"`
	Timestamp   string       `json:"timestamp"`
	Author      Author       `json:"author"`
	Attachments []Attachment `json:"attachments"`
}

type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Attachment references a file uploaded with a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	ProxyURL    string `json:"proxy_url"`
}

// PinList is one response of the pins endpoint: the decoded pins in server
// order plus the body exactly as received.
type PinList struct {
	Pins []Pin
	Raw  json.RawMessage
}

// AttachmentCount sums attachments across all pins.
func (l *PinList) AttachmentCount() int {
	n := 0
	for _, p := range l.Pins {
		n += len(p.Attachments)
	}
	return n
}

type rateLimitBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
