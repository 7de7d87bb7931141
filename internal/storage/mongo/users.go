package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/pribylovaa/user-intake/internal/models"
	"github.com/pribylovaa/user-intake/internal/storage"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// userDocument — представление UserRecord в коллекции.
// _id совпадает с id записи, поэтому повторная вставка того же id даёт duplicate key.
type userDocument struct {
	ID        string    `bson:"_id"`
	UserName  string    `bson:"userName"`
	UserEmail string    `bson:"userEmail"`
	Timestamp time.Time `bson:"timestamp"`
}

func toDocument(rec models.UserRecord) userDocument {
	return userDocument{
		ID:        rec.ID,
		UserName:  rec.UserName,
		UserEmail: rec.UserEmail,
		// MongoDB DateTime хранит миллисекунды.
		Timestamp: rec.Timestamp.UTC().Truncate(time.Millisecond),
	}
}

func (d userDocument) toModel() models.UserRecord {
	return models.UserRecord{
		ID:        d.ID,
		UserName:  d.UserName,
		UserEmail: d.UserEmail,
		Timestamp: d.Timestamp.UTC(),
	}
}

// SaveUser вставляет один документ.
// Конфликт по _id — storage.ErrConflict.
func (m *Mongo) SaveUser(ctx context.Context, rec models.UserRecord) error {
	const op = "storage/mongo/SaveUser"

	if _, err := m.users.InsertOne(ctx, toDocument(rec)); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrConflict)
		}

		return fmt.Errorf("%s: insert: %w", op, err)
	}

	return nil
}
