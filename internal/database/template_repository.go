package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ghostarr/ghostarr/internal/models"
)

// TemplateRepository persists newsletter templates.
type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

const templateColumns = "id, name, description, body, is_default, is_builtin, created_at, updated_at"

func scanTemplate(scanner interface{ Scan(...interface{}) error }) (*models.Template, error) {
	var t models.Template
	err := scanner.Scan(&t.ID, &t.Name, &t.Description, &t.Body,
		&t.IsDefault, &t.IsBuiltin, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepository) Create(t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	err := r.db.QueryRow(`
		INSERT INTO templates (id, name, description, body, is_default, is_builtin)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, t.ID, t.Name, t.Description, t.Body, t.IsDefault, t.IsBuiltin).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Get(id string) (*models.Template, error) {
	row := r.db.QueryRow("SELECT "+templateColumns+" FROM templates WHERE id = $1", id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

// GetDefault returns the template marked default, or any template when
// none is marked.
func (r *TemplateRepository) GetDefault() (*models.Template, error) {
	row := r.db.QueryRow("SELECT " + templateColumns + " FROM templates ORDER BY is_default DESC, created_at ASC LIMIT 1")
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepository) List() ([]*models.Template, error) {
	rows, err := r.db.Query("SELECT " + templateColumns + " FROM templates ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *TemplateRepository) Update(t *models.Template) error {
	result, err := r.db.Exec(`
		UPDATE templates
		SET name = $2, description = $3, body = $4, is_default = $5, updated_at = NOW()
		WHERE id = $1
	`, t.ID, t.Name, t.Description, t.Body, t.IsDefault)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a template. Built-in templates cannot be deleted.
func (r *TemplateRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM templates WHERE id = $1 AND NOT is_builtin", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SeedBuiltin inserts a built-in template if no template with that name
// exists yet.
func (r *TemplateRepository) SeedBuiltin(name, description, body string, isDefault bool) error {
	_, err := r.db.Exec(`
		INSERT INTO templates (id, name, description, body, is_default, is_builtin)
		SELECT $1, $2, $3, $4, $5, TRUE
		WHERE NOT EXISTS (SELECT 1 FROM templates WHERE name = $2)
	`, uuid.New().String(), name, description, body, isDefault)
	if err != nil {
		return fmt.Errorf("failed to seed template %s: %w", name, err)
	}
	return nil
}
