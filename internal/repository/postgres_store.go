package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quocanhngo/memento/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore keeps subscribers in the subscribers table. Mutations run in
// one transaction under the store mutex.
type PostgresStore struct {
	mu  sync.Mutex
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Upsert inserts sub or, on endpoint conflict, refreshes credentials and timezone
func (r *PostgresStore) Upsert(ctx context.Context, sub *model.Subscriber) (*model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := sub.Clone()
	now := r.now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	row.LastSentLocalDate = nil

	updates := []string{"credentials", "updated_at"}
	if row.Timezone != "" {
		updates = append(updates, "timezone")
	}

	var out model.Subscriber
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("endpoint = ?", row.Endpoint).First(&out).Error
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return &out, nil
}

// Find finds a subscriber by endpoint
func (r *PostgresStore) Find(ctx context.Context, endpoint string) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &sub, nil
}

// Remove deletes a subscriber; deleting an unknown endpoint is not an error
func (r *PostgresStore) Remove(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.db.WithContext(ctx).Where("endpoint = ?", endpoint).Delete(&model.Subscriber{}).Error
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ListAll returns every subscriber, oldest first
func (r *PostgresStore) ListAll(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	err := r.db.WithContext(ctx).Order("created_at ASC, endpoint ASC").Find(&subs).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return subs, nil
}

// UpdatePreferences merges patch into the stored record
func (r *PostgresStore) UpdatePreferences(ctx context.Context, endpoint string, patch model.PreferencesPatch) (*model.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sub model.Subscriber
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("endpoint = ?", endpoint).First(&sub).Error; err != nil {
			return err
		}
		patch.Apply(&sub)
		sub.UpdatedAt = r.now().UTC()
		return tx.Save(&sub).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return &sub, nil
}

// ApplyBatch marks sends and removes gone endpoints in one transaction.
// Updates touch existing rows only, so removed subscribers stay removed.
func (r *PostgresStore) ApplyBatch(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for endpoint, dateKey := range batch.MarkSent {
			if err := tx.Model(&model.Subscriber{}).
				Where("endpoint = ?", endpoint).
				Updates(map[string]interface{}{
					"last_sent_local_date": dateKey,
					"updated_at":           now,
				}).Error; err != nil {
				return err
			}
		}
		if len(batch.Remove) > 0 {
			if err := tx.Where("endpoint IN ?", batch.Remove).Delete(&model.Subscriber{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
