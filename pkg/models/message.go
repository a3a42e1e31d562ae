package models

// Message is a single chat-room message. TS is assigned by the store at
// write acceptance and is the sole ordering key; it is set exactly once and
// never mutated. System messages (join/leave announcements) carry no author.
type Message struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	AuthorID   string `json:"author_id,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	System     bool   `json:"system,omitempty"`
	TS         int64  `json:"ts"`
}
