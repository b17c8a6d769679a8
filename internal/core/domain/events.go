package domain

import "time"

type EventName string

const (
	EventProcessingStarted EventName = "PROCESSING_STARTED"
	EventOCRDone           EventName = "OCR_DONE"
	EventClassified        EventName = "CLASSIFIED"
	EventCompleted         EventName = "COMPLETED"
	EventError             EventName = "ERROR"
)

// Terminal reports whether no further events follow for the run.
func (n EventName) Terminal() bool {
	return n == EventCompleted || n == EventError
}

type PipelineEvent struct {
	DocumentID string    `json:"document_id"`
	Name       EventName `json:"name"`
	Payload    string    `json:"payload"`
	At         time.Time `json:"at"`
}

// EventForAudit maps a pipeline audit action to the event published for it.
func EventForAudit(action AuditAction) (EventName, bool) {
	switch action {
	case AuditProcessStart:
		return EventProcessingStarted, true
	case AuditOCRDone:
		return EventOCRDone, true
	case AuditClassified:
		return EventClassified, true
	case AuditProcessComplete:
		return EventCompleted, true
	case AuditProcessError:
		return EventError, true
	default:
		return "", false
	}
}
