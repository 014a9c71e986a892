package models

import "time"

// Template is a newsletter layout. Body holds the HTML template source;
// built-in templates ship as files and are seeded at startup.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Body        string    `json:"body"`
	IsDefault   bool      `json:"is_default"`
	IsBuiltin   bool      `json:"is_builtin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
