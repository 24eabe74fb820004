package models

import "encoding/json"

// Tables carried on the realtime change feed.
const (
	TableMessages = "chat_messages"
	TableChats    = "chats"
	TableVotes    = "votes"
	TableComments = "comments"
)

// Event types.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// TableEvent is the wire shape of one realtime change. Row is decoded into
// the entity type for Table at the boundary; payloads that fail to decode or
// validate are dropped there rather than reaching cache code untyped.
type TableEvent struct {
	Table string          `json:"table"`
	Type  string          `json:"type"`
	Row   json.RawMessage `json:"row"`
}

// Message decodes the event row as a ChatMessage.
func (e TableEvent) Message() (*ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(e.Row, &m); err != nil {
		return nil, NewValidationError("malformed message event: " + err.Error())
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Vote decodes the event row as a Vote.
func (e TableEvent) Vote() (*Vote, error) {
	var v Vote
	if err := json.Unmarshal(e.Row, &v); err != nil {
		return nil, NewValidationError("malformed vote event: " + err.Error())
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

// Chat decodes the event row as a Chat.
func (e TableEvent) Chat() (*Chat, error) {
	var c Chat
	if err := json.Unmarshal(e.Row, &c); err != nil {
		return nil, NewValidationError("malformed chat event: " + err.Error())
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewTableEvent marshals row into a TableEvent. Used by the dev server when
// broadcasting changes.
func NewTableEvent(table, eventType string, row interface{}) (TableEvent, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return TableEvent{}, err
	}
	return TableEvent{Table: table, Type: eventType, Row: raw}, nil
}
