package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

// newIdemDB opens a private in-memory database through OpenSQLite.
func newIdemDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}
	return db
}

func reservation(id, key string, expires time.Time) *domain.Idempotency {
	return &domain.Idempotency{
		ID: id, Scope: "answers", Key: key, ResourceID: "ans-" + id,
		Status: 200, CreatedAt: expires.Add(-time.Hour), ExpiresAt: expires,
	}
}

func TestGetIdempotency(t *testing.T) {
	db := newIdemDB(t, true)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, r := range []*domain.Idempotency{
		reservation("live", "k-live", now.Add(time.Hour)),
		reservation("old", "k-old", now.Add(-time.Minute)),
	} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec, err := GetIdempotency(ctx, db, "answers", "k-live", now)
	if err != nil || rec.ResourceID != "ans-live" {
		t.Fatalf("live: %+v %v", rec, err)
	}

	misses := []struct{ name, scope, key string }{
		{"blank key", "answers", "   "},
		{"expired", "answers", "k-old"},
		{"unknown", "answers", "nope"},
		{"other scope", "questions", "k-live"},
	}
	for _, m := range misses {
		if rec, err := GetIdempotency(ctx, db, m.scope, m.key, now); rec != nil || !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: got %+v %v", m.name, rec, err)
		}
	}

	// once past expiry the reservation is gone
	if _, err := GetIdempotency(ctx, db, "answers", "k-live", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("past expiry: %v", err)
	}
}

func TestCreateIdempotency_ClaimsOnce(t *testing.T) {
	db := newIdemDB(t, true)
	ctx := context.Background()
	before := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "answers", "retry-1", "a1", 200, 90*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if rec.ID == "" || rec.ResourceID != "a1" || rec.Status != 200 {
		t.Fatalf("record: %+v", rec)
	}
	if d := rec.ExpiresAt.Sub(rec.CreatedAt); d != 90*time.Minute || rec.CreatedAt.Before(before) {
		t.Fatalf("window: created %v expires %v", rec.CreatedAt, rec.ExpiresAt)
	}

	// a second claim loses and leaves the first answer id in place
	if _, err := CreateIdempotency(ctx, db, "answers", "retry-1", "a2", 200, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second claim: %v", err)
	}
	got, err := GetIdempotency(ctx, db, "answers", "retry-1", time.Now().UTC())
	if err != nil || got.ResourceID != "a1" {
		t.Fatalf("after duplicate: %+v %v", got, err)
	}

	// the same key in another scope is independent
	if _, err := CreateIdempotency(ctx, db, "questions", "retry-1", "q1", 200, time.Hour); err != nil {
		t.Fatalf("other scope: %v", err)
	}
}

func TestCreateIdempotency_ReplacesExpired(t *testing.T) {
	db := newIdemDB(t, true)
	ctx := context.Background()
	if err := db.Create(reservation("stale", "k", time.Now().UTC().Add(-time.Second))).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := CreateIdempotency(ctx, db, "answers", "k", "fresh", 200, time.Hour)
	if err != nil || rec.ResourceID != "fresh" {
		t.Fatalf("reclaim: %+v %v", rec, err)
	}
	var n int64
	db.Model(&domain.Idempotency{}).Where("key = ?", "k").Count(&n)
	if n != 1 {
		t.Fatalf("rows for key=%d, want 1", n)
	}
}

func TestCreateIdempotency_StoreError(t *testing.T) {
	db := newIdemDB(t, false) // no table
	_, err := CreateIdempotency(context.Background(), db, "answers", "k", "a", 200, time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("want a store error, got %v", err)
	}
}

func TestDeleteExpiredIdempotency(t *testing.T) {
	db := newIdemDB(t, true)
	now := time.Now().UTC()
	for i, exp := range []time.Time{now.Add(-time.Hour), now, now.Add(time.Hour)} {
		if err := db.Create(reservation(fmt.Sprint(i), fmt.Sprintf("k%d", i), exp)).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	n, err := DeleteExpiredIdempotency(context.Background(), db, now)
	if err != nil || n != 2 {
		t.Fatalf("deleted %d, %v; want 2", n, err)
	}
	var left []domain.Idempotency
	db.Find(&left)
	if len(left) != 1 || left[0].Key != "k2" {
		t.Fatalf("left: %+v", left)
	}
}

func TestIdempotency_NonUTCClock(t *testing.T) {
	db := newIdemDB(t, true)
	ctx := context.Background()

	if _, err := CreateIdempotency(ctx, db, "answers", "k-live", "ans-live", 200, 2*time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(reservation("old", "k-old", time.Now().UTC().Add(-time.Minute))).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, loc := range []*time.Location{
		time.FixedZone("UTC+5", 5*3600),
		time.FixedZone("UTC-5", -5*3600),
	} {
		now := time.Now().In(loc)
		if _, err := GetIdempotency(ctx, db, "answers", "k-live", now); err != nil {
			t.Fatalf("%s: live reservation not found: %v", loc, err)
		}
		if _, err := GetIdempotency(ctx, db, "answers", "k-old", now); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expired reservation reported live: %v", loc, err)
		}
	}

	n, err := DeleteExpiredIdempotency(ctx, db, time.Now().In(time.FixedZone("UTC+5", 5*3600)))
	if err != nil || n != 1 {
		t.Fatalf("deleted %d, %v; want 1", n, err)
	}
	if _, err := GetIdempotency(ctx, db, "answers", "k-live", time.Now()); err != nil {
		t.Fatalf("live reservation lost after sweep: %v", err)
	}
}
