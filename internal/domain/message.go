package domain

import (
	"path/filepath"
	"strings"
)

// Direction is whether a message came from or went to the customer.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Source is who authored a message.
type Source string

const (
	SourceUser   Source = "USER"
	SourceAgent  Source = "AGENT"
	SourceBot    Source = "BOT"
	SourceSystem Source = "SYSTEM"
)

// Message is a single chat message inside a conversation.
type Message struct {
	ID             ID           `json:"id"`
	ConversationID ID           `json:"conversation_id"`
	IssueID        ID           `json:"issue_id,omitempty"`
	Content        string       `json:"content"`
	CreatedAt      Timestamp    `json:"created_at"`
	Direction      Direction    `json:"direction"`
	Source         Source       `json:"source"`
	SenderID       ID           `json:"sender_id,omitempty"`
	SenderName     string       `json:"sender_name,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ResponseTime   *float64     `json:"response_time,omitempty"`
}

// FromCustomer reports whether the message was written by the customer.
func (m Message) FromCustomer() bool {
	return m.Source == SourceUser || m.Direction == DirectionInbound
}

// Snapshot returns the denormalized last-message view of m.
func (m Message) Snapshot() LastMessage {
	return LastMessage{
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Direction: m.Direction,
		Source:    m.Source,
	}
}

// Attachment is a file attached to a message, or pending upload.
type Attachment struct {
	ID           ID     `json:"id"`
	Name         string `json:"name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size,omitempty"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	PreviewURL   string `json:"preview_url,omitempty"`
}

// OutgoingMessage is what an agent sends into a conversation.
type OutgoingMessage struct {
	Content     string `json:"content"`
	Attachments []ID   `json:"attachments,omitempty"`
	IssueID     ID     `json:"issue_id,omitempty"`
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".txt":  "text/plain",
}

// MimeTypeFor guesses an attachment mime type from its file name.
func MimeTypeFor(name string) string {
	if mt, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return "application/octet-stream"
}
