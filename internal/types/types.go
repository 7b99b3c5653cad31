package types

import (
	"time"
)

const (
	MessageText   = "text"
	MessageFile   = "file"
	MessageSystem = "system"
)

type User struct {
	Id       string    `json:"id"`
	Username string    `json:"username"`
	Room     string    `json:"room,omitempty"`
	IsOnline bool      `json:"is_online"`
	JoinedAt time.Time `json:"joined_at,omitempty"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

type Message struct {
	Id        int        `json:"id"`
	Kind      string     `json:"type"`
	SenderId  string     `json:"sender_id,omitempty"`
	Sender    string     `json:"sender"`
	Room      string     `json:"room"`
	Content   string     `json:"content,omitempty"`
	File      *FileInfo  `json:"file,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Reactions []Reaction `json:"reactions,omitempty"`
	ReadBy    []string   `json:"read_by,omitempty"`
}

type FileInfo struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Url      string `json:"url"`
}

type Reaction struct {
	UserId    string    `json:"user_id"`
	Username  string    `json:"username"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

type PrivateMessage struct {
	Id        int       `json:"id"`
	From      string    `json:"from"`
	FromId    string    `json:"from_id"`
	To        string    `json:"to"`
	ToId      string    `json:"to_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type RoomSummary struct {
	Name         string `json:"name"`
	UserCount    int    `json:"user_count"`
	MessageCount int    `json:"message_count"`
}
