package departments

import (
	"context"
	"fmt"
	"substock/internal/repository"
	custom_error "substock/pkg/errors"
	"substock/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type DepartmentRepository struct {
	Repository *repository.Repository
}

func NewDepartmentRepository(r *repository.Repository) *DepartmentRepository {
	return &DepartmentRepository{Repository: r}
}

func (r *DepartmentRepository) GetDepartments(ctx context.Context) ([]models.Department, error) {
	departments := []models.Department{}
	query := r.Repository.GoquDBWrapper.
		Select("id", "code", "name", "details").
		From("departments").
		Order(goqu.I("code").Asc())
	if err := query.Executor().ScanStructsContext(ctx, &departments); err != nil {
		return nil, fmt.Errorf("unable to execute SQL: %w", err)
	}

	return departments, nil
}

func (r *DepartmentRepository) GetDepartment(ctx context.Context, departmentID int) (*models.Department, error) {
	var department models.Department
	found, err := r.Repository.GoquDBWrapper.
		Select("id", "code", "name", "details").
		From("departments").
		Where(goqu.Ex{"id": departmentID}).
		Executor().ScanStructContext(ctx, &department)
	if err != nil {
		return nil, fmt.Errorf("unable to execute SQL: %w", err)
	}
	if !found {
		return nil, custom_error.NewNotFoundError("department", departmentID)
	}

	return &department, nil
}

func (r *DepartmentRepository) PersistDepartment(ctx context.Context, department *models.Department) error {
	query := r.Repository.GoquDBWrapper.Insert("departments").
		Rows(goqu.Record{
			"code":    department.Code,
			"name":    department.Name,
			"details": department.Details,
		}).
		Returning("id")

	if _, err := query.Executor().ScanValContext(ctx, &department.ID); err != nil {
		return custom_error.TranslateDBError(err, "failed to insert department record")
	}

	return nil
}

func (r *DepartmentRepository) UpdateDepartment(ctx context.Context, departmentID int, req UpdateDepartmentRequest) (*models.Department, error) {
	updates := goqu.Record{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Details != nil {
		updates["details"] = *req.Details
	}
	if len(updates) == 0 {
		return nil, custom_error.NewValidationError("", "no fields to update")
	}

	var department models.Department
	found, err := r.Repository.GoquDBWrapper.
		Update("departments").
		Set(updates).
		Where(goqu.Ex{"id": departmentID}).
		Returning("id", "code", "name", "details").
		Executor().ScanStructContext(ctx, &department)
	if err != nil {
		return nil, custom_error.TranslateDBError(err, "failed to update department")
	}
	if !found {
		return nil, custom_error.NewNotFoundError("department", departmentID)
	}

	return &department, nil
}
