// mongo — адаптер UserStorage поверх MongoDB (в т.ч. Cosmos DB с Mongo API).
package mongo

import (
	"context"
	"fmt"

	"github.com/pribylovaa/user-intake/internal/config"
	"github.com/pribylovaa/user-intake/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo — тонкий адаптер подключения и целевой коллекции.
type Mongo struct {
	client *mongodriver.Client
	db     *mongodriver.Database
	users  *mongodriver.Collection
}

// New подключается к MongoDB, проверяет соединение и подготавливает коллекцию (db.database, db.collection).
// Если задан access_key, он передаётся как пароль (для Cosmos DB username — имя аккаунта).
func New(ctx context.Context, cfg config.DBConfig) (*Mongo, error) {
	const op = "storage/mongo/New"

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%s: empty endpoint", op)
	}

	opts := options.Client().ApplyURI(cfg.Endpoint)
	if cfg.AccessKey != "" {
		opts.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.AccessKey,
		})
	}

	cli, err := mongodriver.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := cli.Database(cfg.Database)
	m := &Mongo{
		client: cli,
		db:     db,
		users:  db.Collection(cfg.Collection),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = m.Close(ctx)
		return nil, err
	}

	return m, nil
}

// Ping проверяет доступность primary.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// ensureIndexes — индекс по timestamp для выборок «последние записи» из смежных систем.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("timestamp_desc"),
	})
	if err != nil {
		return fmt.Errorf("storage/mongo/ensureIndexes: %w", err)
	}

	return nil
}

var _ storage.UserStorage = (*Mongo)(nil)
