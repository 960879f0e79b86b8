package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-waitlist-backend/internal/domain"
)

// GetGeo returns the cached location for ip if it has not expired at now,
// or ErrNotFound.
func GetGeo(ctx context.Context, db *gorm.DB, ip string, now time.Time) (*domain.GeoCacheEntry, error) {
	var e domain.GeoCacheEntry
	err := db.WithContext(ctx).
		Where("ip = ? AND expires_at > ?", ip, now).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PutGeo inserts or refreshes the cached location for ip.
func PutGeo(ctx context.Context, db *gorm.DB, ip, city, region, country string, now time.Time, ttl time.Duration) (*domain.GeoCacheEntry, error) {
	e := &domain.GeoCacheEntry{
		IP:        ip,
		City:      city,
		Region:    region,
		Country:   country,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ip"}},
			DoUpdates: clause.AssignmentColumns([]string{"city", "region", "country", "created_at", "expires_at"}),
		}).
		Create(e).Error
	if err != nil {
		return nil, err
	}
	return e, nil
}

// PurgeExpiredGeo deletes cache entries that expired at or before now and
// returns the number removed.
func PurgeExpiredGeo(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.GeoCacheEntry{})
	return res.RowsAffected, res.Error
}
