package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	AuditResourceStock    = "stock"
	AuditResourceTransfer = "transfer"
	AuditResourceDrug     = "drug"
)

// AuditLog is one entry of a resource's change history. Payload is the JSONB column as
// stored; Data is its decoded form.
type AuditLog struct {
	ID           int                    `json:"id" db:"id"`
	ResourceID   int                    `json:"resource_id" db:"resource_id"`
	ResourceType string                 `json:"resource_type" db:"resource_type"`
	Action       string                 `json:"action" db:"action"`
	Payload      []byte                 `json:"-" db:"data"`
	Data         map[string]interface{} `json:"data" db:"-"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
	UserID       *int                   `json:"user_id,omitempty" db:"user_id"`
}

func (a *AuditLog) Decode() error {
	if len(a.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(a.Payload, &a.Data); err != nil {
		return fmt.Errorf("audit log %d has malformed data: %w", a.ID, err)
	}
	return nil
}
