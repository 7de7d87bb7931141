package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/user-intake/internal/models"
	"github.com/pribylovaa/user-intake/internal/storage"
)

// SaveUser вставляет одну строку; doc — та же запись в JSON.
// unique_violation по id — storage.ErrConflict.
func (s *Storage) SaveUser(ctx context.Context, rec models.UserRecord) error {
	const op = "storage/postgres/SaveUser"

	rec.Timestamp = rec.Timestamp.UTC()

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO `+s.table+` (id, user_name, user_email, created_at, doc) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserName, rec.UserEmail, rec.Timestamp, doc,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
