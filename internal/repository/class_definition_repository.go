package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-session-api/internal/models"
)

// ClassDefinitionRepository reads catalog entries. The catalog is owned elsewhere; this service never writes it.
type ClassDefinitionRepository struct {
	db *sqlx.DB
}

// NewClassDefinitionRepository constructs the repository.
func NewClassDefinitionRepository(db *sqlx.DB) *ClassDefinitionRepository {
	return &ClassDefinitionRepository{db: db}
}

// FindByID loads a class definition by id.
func (r *ClassDefinitionRepository) FindByID(ctx context.Context, id string) (*models.ClassDefinition, error) {
	const query = `SELECT id, title, default_instructor_id, default_capacity, location_type FROM class_definitions WHERE id = $1`
	var def models.ClassDefinition
	if err := r.db.GetContext(ctx, &def, query, id); err != nil {
		return nil, err
	}
	return &def, nil
}
