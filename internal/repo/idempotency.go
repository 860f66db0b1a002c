// Package repo implements the data layer. This file stores Idempotency-Key
// reservations for POST /answers. Answer ids are generated server-side, so
// without a reservation a retried request would create a second answer.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

var (
	// ErrNotFound is returned when no live reservation exists.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a live reservation already holds
	// (scope, key).
	ErrDuplicate = errors.New("duplicate")
)

// GetIdempotency returns the reservation for (scope, key) that is still live
// at now, or ErrNotFound. now may be in any location.
func GetIdempotency(ctx context.Context, db *gorm.DB, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	// Stored times are UTC and SQLite compares them as text.
	now = now.UTC()
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("scope = ? AND key = ? AND expires_at > ?", scope, key, now).
		Take(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency reserves (scope, key) for resourceID until ttl elapses.
// An expired reservation for the pair is replaced. A live one is left alone
// and ErrDuplicate is returned, so the call doubles as an atomic claim.
func CreateIdempotency(ctx context.Context, db *gorm.DB, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scope = ? AND key = ? AND expires_at <= ?", scope, key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicate
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteExpiredIdempotency removes reservations that expired at or before
// now and returns how many went. now may be in any location.
func DeleteExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	now = now.UTC()
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
