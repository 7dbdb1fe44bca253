package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"substock/internal/repository"
	"substock/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

// maxResourceLog caps a single history read; older entries stay in the table.
const maxResourceLog = 500

type AuditLogRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *AuditLogRepository {
	return &AuditLogRepository{repository: r}
}

func (r *AuditLogRepository) PersistLog(ctx context.Context, entry models.AuditLog, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal audit log data: %w", err)
	}

	query := r.repository.Q(nil).Insert("audit_logs").
		Rows(goqu.Record{
			"resource_id":   entry.ResourceID,
			"resource_type": entry.ResourceType,
			"action":        entry.Action,
			"data":          goqu.L("?::jsonb", string(payload)),
			"user_id":       entry.UserID,
		})

	if _, err = query.Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to insert %s audit log for %d: %w", entry.ResourceType, entry.ResourceID, err)
	}

	return nil
}

// GetResourceLog returns the history of one stock, transfer or drug, newest first.
func (r *AuditLogRepository) GetResourceLog(ctx context.Context, id int, resourceType string) ([]models.AuditLog, error) {
	query := r.repository.Q(nil).
		From("audit_logs").
		Select("id", "resource_id", "resource_type", "action", goqu.L("data::text").As("data"), "created_at", "user_id").
		Where(goqu.Ex{
			"resource_id":   id,
			"resource_type": resourceType,
		}).
		Order(goqu.I("id").Desc()).
		Limit(maxResourceLog)

	entries := []models.AuditLog{}
	if err := query.Executor().ScanStructsContext(ctx, &entries); err != nil {
		return nil, fmt.Errorf("unable to select %s audit log for %d: %w", resourceType, id, err)
	}
	for i := range entries {
		if err := entries[i].Decode(); err != nil {
			return nil, err
		}
	}

	return entries, nil
}
