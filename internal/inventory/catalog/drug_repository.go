package catalog

import (
	"context"
	"fmt"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type DrugRepository struct {
	Repo *repository.Repository
}

func NewRepository(r *repository.Repository) *DrugRepository {
	return &DrugRepository{Repo: r}
}

var drugColumns = []interface{}{"id", "code", "name", "unit", "unit_price", "updated_at"}

func (r *DrugRepository) GetDrug(ctx context.Context, tx *goqu.TxDatabase, drugID int) (*models.Drug, error) {
	var drug models.Drug

	found, err := r.Repo.Q(tx).From("drugs").
		Select(drugColumns...).
		Where(goqu.Ex{"id": drugID}).
		Executor().ScanStructContext(ctx, &drug)
	if err != nil {
		return nil, fmt.Errorf("error executing SQL statement: %w", err)
	}
	if !found {
		return nil, custom_error.NewNotFoundError("drug", drugID)
	}

	return &drug, nil
}

func (r *DrugRepository) ListDrugs(ctx context.Context, search string) ([]models.Drug, error) {
	query := r.Repo.GoquDBWrapper.From("drugs").
		Select(drugColumns...).
		Order(goqu.I("code").Asc())
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where(goqu.Or(
			goqu.I("code").ILike(pattern),
			goqu.I("name").ILike(pattern),
		))
	}

	drugs := []models.Drug{}
	if err := query.Executor().ScanStructsContext(ctx, &drugs); err != nil {
		return nil, fmt.Errorf("error executing SQL statement: %w", err)
	}

	return drugs, nil
}

func (r *DrugRepository) UpdateDrugPrice(ctx context.Context, tx *goqu.TxDatabase, drug *models.Drug) error {
	result, err := r.Repo.Q(tx).Update("drugs").
		Set(goqu.Record{
			"unit_price": drug.UnitPrice,
			"updated_at": drug.UpdatedAt,
		}).
		Where(goqu.Ex{"id": drug.ID}).
		Executor().ExecContext(ctx)
	if err != nil {
		return custom_error.TranslateDBError(err, fmt.Sprintf("failed to update price of drug %d", drug.ID))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return custom_error.NewNotFoundError("drug", drug.ID)
	}

	return nil
}
