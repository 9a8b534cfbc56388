package monitor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/stiffinWanjohi/streampool/internal/domain"
)

const processedMessageSchemaURL = "streampool://processed_message.json"

const processedMessageSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "processedAt", "processedBy"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "processedAt": {"type": "string", "format": "date-time"},
    "processedBy": {"type": "string", "minLength": 1}
  }
}`

// Decoder validates processed_message payloads before they are aggregated.
type Decoder struct {
	schema *jsonschema.Schema
}

// NewDecoder compiles the processed message schema.
func NewDecoder() (*Decoder, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	c.AssertFormat = true

	if err := c.AddResource(processedMessageSchemaURL, strings.NewReader(processedMessageSchema)); err != nil {
		return nil, fmt.Errorf("add processed message schema: %w", err)
	}
	schema, err := c.Compile(processedMessageSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile processed message schema: %w", err)
	}
	return &Decoder{schema: schema}, nil
}

// Decode extracts the processed message of a target stream entry.
// Every failure wraps domain.ErrInvalidPayload.
func (d *Decoder) Decode(entry domain.Entry) (domain.ProcessedMessage, error) {
	raw, ok := entry.Fields[domain.ProcessedMessageField]
	if !ok {
		return domain.ProcessedMessage{}, fmt.Errorf("%w: entry %s has no %s", domain.ErrInvalidPayload, entry.ID, domain.ProcessedMessageField)
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.ProcessedMessage{}, fmt.Errorf("%w: entry %s: %v", domain.ErrInvalidPayload, entry.ID, err)
	}
	if err := d.schema.Validate(doc); err != nil {
		return domain.ProcessedMessage{}, fmt.Errorf("%w: entry %s: %v", domain.ErrInvalidPayload, entry.ID, err)
	}
	return domain.DecodeProcessedMessage(raw)
}
