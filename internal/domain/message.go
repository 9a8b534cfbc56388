// Package domain holds the message types exchanged over the streams and the
// errors shared by the consumer, monitor and broker packages.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// MessageIDField is the only field of a source stream entry.
	MessageIDField = "message_id"

	// ProcessedMessageField is the only field of a target stream entry.
	ProcessedMessageField = "processed_message"

	// TimestampLayout renders processedAt as ISO-8601 UTC with millisecond precision.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Message identifies a unit of work published by an upstream producer.
type Message struct {
	ID string `json:"id"`
}

// ProcessedMessage is a Message with provenance of the consumer that handled it.
type ProcessedMessage struct {
	ID          string `json:"id"`
	ProcessedAt string `json:"processedAt"`
	ProcessedBy string `json:"processedBy"`
}

// NewProcessedMessage builds a processed record for msg.
func NewProcessedMessage(msg Message, processedBy string, at time.Time) ProcessedMessage {
	return ProcessedMessage{
		ID:          msg.ID,
		ProcessedAt: at.UTC().Format(TimestampLayout),
		ProcessedBy: processedBy,
	}
}

// Encode serializes the record into the processed_message wire value.
func (p ProcessedMessage) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeProcessedMessage parses a processed_message wire value.
func DecodeProcessedMessage(raw string) (ProcessedMessage, error) {
	var p ProcessedMessage
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ProcessedMessage{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

// Entry is a broker-assigned stream entry.
type Entry struct {
	ID     string
	Fields map[string]string
}

// MessageFromEntry extracts the Message carried by a source stream entry.
func MessageFromEntry(e Entry) (Message, error) {
	id := e.Fields[MessageIDField]
	if id == "" {
		return Message{}, fmt.Errorf("%w: entry %s has no %s", ErrMalformedEntry, e.ID, MessageIDField)
	}
	return Message{ID: id}, nil
}

// EntryID is a parsed <millis>-<seq> stream entry id.
type EntryID struct {
	Millis int64
	Seq    int64
}

// ParseEntryID parses a stream entry id.
func ParseEntryID(id string) (EntryID, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return EntryID{}, fmt.Errorf("%w: %q", ErrInvalidEntryID, id)
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || millis < 0 {
		return EntryID{}, fmt.Errorf("%w: %q", ErrInvalidEntryID, id)
	}
	s, err := strconv.ParseInt(seq, 10, 64)
	if err != nil || s < 0 {
		return EntryID{}, fmt.Errorf("%w: %q", ErrInvalidEntryID, id)
	}
	return EntryID{Millis: millis, Seq: s}, nil
}

// Second returns the whole-second bucket of the entry timestamp.
func (id EntryID) Second() int64 {
	return id.Millis / 1000
}

// Next returns the smallest id strictly greater than id.
func (id EntryID) Next() EntryID {
	if id.Seq == int64(^uint64(0)>>1) {
		return EntryID{Millis: id.Millis + 1}
	}
	return EntryID{Millis: id.Millis, Seq: id.Seq + 1}
}

func (id EntryID) String() string {
	return strconv.FormatInt(id.Millis, 10) + "-" + strconv.FormatInt(id.Seq, 10)
}
