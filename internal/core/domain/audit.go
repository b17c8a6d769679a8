package domain

import "time"

type AuditAction string

const (
	AuditUploaded        AuditAction = "UPLOADED"
	AuditProcessStart    AuditAction = "PROCESS_START"
	AuditOCRDone         AuditAction = "OCR_DONE"
	AuditClassified      AuditAction = "CLASSIFIED"
	AuditProcessComplete AuditAction = "PROCESS_COMPLETE"
	AuditProcessError    AuditAction = "PROCESS_ERROR"
	AuditReclassified    AuditAction = "RECLASSIFIED"
)

// SystemActor marks entries written by the pipeline rather than a user.
const SystemActor = "SYSTEM"

type AuditEntry struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	Action     AuditAction `json:"action"`
	Details    string      `json:"details"`
	Actor      string      `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
}
