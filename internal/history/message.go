package history

import (
	"bytes"
	"encoding/json"
	"errors"
)

var errNotObject = errors.New("record is not a JSON object")

// Message is one captured chat line. Values are treated as immutable once
// they are stored in a Cache.
type Message struct {
	ConversationID string            `json:"conversation_id"`
	AuthorID       string            `json:"author_id"`
	Content        string            `json:"content"`
	Attachments    []json.RawMessage `json:"attachments"`
	Timestamp      string            `json:"timestamp"`
}

// Snapshot maps a conversation id to its ordered history, oldest first.
type Snapshot map[string][]Message

// storedMessage is the record written to disk.
type storedMessage struct {
	ConversationID string            `json:"conversation_id"`
	AuthorID       string            `json:"author_id"`
	Content        string            `json:"content"`
	Attachments    []json.RawMessage `json:"attachments"`
	Timestamp      string            `json:"timestamp"`
}

// decodedMessage is the record read from disk. Older snapshots carry the
// conversation id under "group_id" and may store a single attachment
// descriptor or null instead of a list. Unknown keys are ignored.
type decodedMessage struct {
	ConversationID string          `json:"conversation_id"`
	GroupID        string          `json:"group_id"`
	AuthorID       string          `json:"author_id"`
	Content        string          `json:"content"`
	Attachments    json.RawMessage `json:"attachments"`
	Timestamp      string          `json:"timestamp"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	if t := bytes.TrimSpace(data); len(t) == 0 || t[0] != '{' {
		return errNotObject
	}
	var d decodedMessage
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	conv := d.ConversationID
	if conv == "" {
		conv = d.GroupID
	}
	atts, err := decodeAttachments(d.Attachments)
	if err != nil {
		return err
	}
	*m = Message{
		ConversationID: conv,
		AuthorID:       d.AuthorID,
		Content:        d.Content,
		Attachments:    atts,
		Timestamp:      d.Timestamp,
	}
	return nil
}

func decodeAttachments(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var list []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
	} else {
		list = []json.RawMessage{raw}
	}
	if len(list) == 0 {
		return nil, nil
	}
	// Indented snapshots re-flow the raw attachment bytes.
	out := make([]json.RawMessage, len(list))
	for i, a := range list {
		var buf bytes.Buffer
		if err := json.Compact(&buf, a); err != nil {
			return nil, err
		}
		out[i] = buf.Bytes()
	}
	return out, nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	atts := m.Attachments
	if atts == nil {
		atts = []json.RawMessage{}
	}
	// Keep <, > and & readable in the snapshot.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(storedMessage{
		ConversationID: m.ConversationID,
		AuthorID:       m.AuthorID,
		Content:        m.Content,
		Attachments:    atts,
		Timestamp:      m.Timestamp,
	}); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Attachment wraps any JSON-serialisable value as an opaque attachment
// descriptor.
func Attachment(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func (m Message) clone() Message {
	if len(m.Attachments) == 0 {
		m.Attachments = nil
		return m
	}
	atts := make([]json.RawMessage, len(m.Attachments))
	for i, a := range m.Attachments {
		atts[i] = append(json.RawMessage(nil), a...)
	}
	m.Attachments = atts
	return m
}
