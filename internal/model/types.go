package model

import "time"

// Message is one decoded AMI frame. Headers holds every "Name: Value" line
// (last occurrence of a duplicate name wins); Rest accumulates the raw text
// of lines without a colon, terminators included.
type Message struct {
	Headers map[string]string `json:"headers"`
	Rest    string            `json:"rest"`
}

// NewMessage returns an empty message with an allocated header map.
func NewMessage() *Message {
	return &Message{Headers: make(map[string]string)}
}

// Event returns the value of the Event header, if present.
func (m *Message) Event() (string, bool) {
	v, ok := m.Headers["Event"]
	return v, ok
}

// RoutedEvent carries one qualifying message from an upstream session to the
// aggregator. It is the transport contract between sessions and the sink side.
type RoutedEvent struct {
	Source   string
	Message  *Message
	Received time.Time
}

// ServerEndpoint describes one upstream AMI server. Name doubles as the
// routing key and the per-source directory name, so it must be unique.
type ServerEndpoint struct {
	Name      string
	Host      string
	Port      int
	Username  string
	Password  string
	Reconnect bool
}

// DatabaseTarget describes one relational sink reachable by rule inserts.
type DatabaseTarget struct {
	ID       string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}
