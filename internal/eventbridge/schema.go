package eventbridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const stepAckSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["worker_id", "step_index"],
  "properties": {
    "event_id": {"type": "string"},
    "worker_id": {"type": "integer", "minimum": 0},
    "step_index": {"type": "integer", "minimum": 0}
  }
}`

const stepEventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["event_id", "worker_id", "step_index", "target_x", "target_y"],
  "properties": {
    "event_id": {"type": "string", "minLength": 1},
    "worker_id": {"type": "integer", "minimum": 0},
    "order_id": {"type": "integer"},
    "step_index": {"type": "integer", "minimum": 0},
    "step": {"type": "string"},
    "target_x": {"type": "integer"},
    "target_y": {"type": "integer"},
    "pause_seconds": {"type": "integer", "minimum": 0},
    "emitted": {"type": "string"}
  }
}`

var (
	schemaOnce  sync.Once
	ackSchema   *jsonschema.Schema
	eventSchema *jsonschema.Schema
	schemaErr   error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		ackSchema, schemaErr = jsonschema.CompileString("step_ack.schema.json", stepAckSchema)
		if schemaErr != nil {
			return
		}
		eventSchema, schemaErr = jsonschema.CompileString("step_event.schema.json", stepEventSchema)
	})
	return schemaErr
}

// DecodeAck validates raw JSON against the ack schema and decodes it.
func DecodeAck(data []byte) (StepAck, error) {
	var ack StepAck
	if err := validateRaw(data, func() *jsonschema.Schema { return ackSchema }); err != nil {
		return ack, err
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return ack, fmt.Errorf("eventbridge: decode ack: %w", err)
	}
	ack.Normalize()
	return ack, ack.Validate()
}

// DecodeEvent validates raw JSON against the event schema and decodes it.
func DecodeEvent(data []byte) (StepEvent, error) {
	var evt StepEvent
	if err := validateRaw(data, func() *jsonschema.Schema { return eventSchema }); err != nil {
		return evt, err
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("eventbridge: decode event: %w", err)
	}
	return evt, evt.Validate()
}

func validateRaw(data []byte, schema func() *jsonschema.Schema) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("eventbridge: compile schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("eventbridge: invalid JSON: %w", err)
	}
	if err := schema().Validate(doc); err != nil {
		return fmt.Errorf("eventbridge: schema: %w", err)
	}
	return nil
}
