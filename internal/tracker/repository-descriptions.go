package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/myrjola/planfit/internal/errors"
)

// sqliteDescriptionRepository caches exercise descriptions by lowercased exercise name so that every plan
// containing the same exercise shares one description.
type sqliteDescriptionRepository struct {
	baseRepository
}

type exerciseDescription struct {
	markdown  string
	generated bool
}

func descriptionKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the stored description or ErrNotFound.
func (r *sqliteDescriptionRepository) Get(ctx context.Context, name string) (exerciseDescription, error) {
	var d exerciseDescription
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT description_markdown, is_generated
		FROM exercise_descriptions
		WHERE exercise_name = ?`, descriptionKey(name)).Scan(&d.markdown, &d.generated)
	if errors.Is(err, sql.ErrNoRows) {
		return exerciseDescription{}, ErrNotFound
	}
	if err != nil {
		return exerciseDescription{}, fmt.Errorf("query exercise description %q: %w", name, err)
	}
	return d, nil
}

// Save stores the description. A generated description replaces a placeholder but never the other way around.
func (r *sqliteDescriptionRepository) Save(ctx context.Context, name string, d exerciseDescription) error {
	if _, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO exercise_descriptions (exercise_name, description_markdown, is_generated)
		VALUES (?, ?, ?)
		ON CONFLICT (exercise_name) DO UPDATE SET description_markdown = excluded.description_markdown,
		                                          is_generated         = excluded.is_generated
		WHERE excluded.is_generated >= exercise_descriptions.is_generated`,
		descriptionKey(name), d.markdown, d.generated); err != nil {
		return fmt.Errorf("save exercise description %q: %w", name, err)
	}
	return nil
}
