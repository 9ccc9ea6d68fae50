package repository

import (
	"context"

	"meddocs/internal/model"
)

// DocumentRepository defines data access for document metadata using SQL
// queries only. No business logic here — strictly persistence operations.
type DocumentRepository interface {
	// Create inserts a new document row. ID and CreatedAt are assigned by
	// the database; the returned document carries them.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID. Missing rows surface as
	// sql.ErrNoRows for the caller to translate.
	FindByID(ctx context.Context, id int64) (*model.Document, error)

	// List returns all documents ordered by created_at descending,
	// id descending as tiebreak. An empty table yields an empty slice.
	List(ctx context.Context) ([]model.Document, error)

	// Delete removes a document row by ID. It returns nil whether or not
	// the row existed; existence checks belong to the caller.
	Delete(ctx context.Context, id int64) error
}
