package nats

import (
	"encoding/json"
	"fmt"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func encodeEvent(event domain.PipelineEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal pipeline event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a relayed event, for consumers of the relay subjects.
func DecodeEvent(data []byte) (domain.PipelineEvent, error) {
	var event domain.PipelineEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.PipelineEvent{}, fmt.Errorf("unmarshal pipeline event: %w", err)
	}
	return event, nil
}
