package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gamesync/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const postgresMaxRetries = 8

// PostgresBackend keeps documents in the store_nodes table. Updates lock the
// row for the duration of the transaction. It has no cross-process change
// feed, so subscribers only see writes made through this instance.
type PostgresBackend struct {
	db *gorm.DB
}

func NewPostgresBackend(db *gorm.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (p *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var node models.StoreNode
	err := p.db.WithContext(ctx).Where("path = ?", key).First(&node).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(node.Value), nil
}

func (p *PostgresBackend) List(ctx context.Context, collection string) (map[string][]byte, error) {
	var nodes []models.StoreNode
	if err := p.db.WithContext(ctx).Where("collection = ?", collection).Find(&nodes).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(nodes))
	prefix := collection + "/"
	for _, n := range nodes {
		out[strings.TrimPrefix(n.Path, prefix)] = []byte(n.Value)
	}
	return out, nil
}

func (p *PostgresBackend) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	collection, _, ok := strings.Cut(key, "/")
	if !ok {
		return fmt.Errorf("%w: %q is not a document key", ErrInvalidPath, key)
	}

	for i := 0; i < postgresMaxRetries; i++ {
		err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var node models.StoreNode
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("path = ?", key).
				First(&node).Error
			exists := err == nil
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			var current []byte
			if exists {
				current = []byte(node.Value)
			}
			next, err := fn(current)
			if err != nil {
				return err
			}

			switch {
			case next == nil && exists:
				return tx.Delete(&models.StoreNode{}, "path = ?", key).Error
			case next == nil:
				return nil
			case exists:
				return tx.Model(&node).Updates(map[string]interface{}{
					"value":   datatypes.JSON(next),
					"version": gorm.Expr("version + 1"),
				}).Error
			default:
				return tx.Create(&models.StoreNode{
					Path:       key,
					Collection: collection,
					Value:      datatypes.JSON(next),
					Version:    1,
				}).Error
			}
		})
		// Two writers may both see a missing row and race to insert it.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrConflict, key)
}

func (p *PostgresBackend) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
