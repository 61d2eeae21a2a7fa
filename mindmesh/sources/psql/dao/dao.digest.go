// mindmesh/sources/psql/dao/dao.digest.go
package dao

import (
	"context"
	"errors"
	"mindmesh/mindmesh/sources/psql/models"
	"time"

	"gorm.io/gorm"
)

// Activity is one owner's analytics rows inside a digest window.
type Activity struct {
	Metrics        []models.CognitiveMetric
	Moods          []models.MoodEntry
	Sessions       []models.ProductivitySession
	CompletedGoals []models.Goal
}

type DigestDAO struct {
	DB *gorm.DB
}

func NewDigestDAO(db *gorm.DB) *DigestDAO {
	return &DigestDAO{DB: db}
}

// GetProfile returns the owner's profile, or nil when none exists.
func (dao *DigestDAO) GetProfile(ctx context.Context, ownerID string) (*models.Profile, error) {
	var profile models.Profile
	err := dao.DB.WithContext(ctx).First(&profile, "id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (dao *DigestDAO) ActivitySince(ctx context.Context, ownerID string, since time.Time) (*Activity, error) {
	db := dao.DB.WithContext(ctx)
	var a Activity

	if err := db.Where("user_id = ? AND recorded_at >= ?", ownerID, since).
		Order("recorded_at ASC").Find(&a.Metrics).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ? AND created_at >= ?", ownerID, since).
		Order("created_at ASC").Find(&a.Moods).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ? AND start_time >= ?", ownerID, since).
		Order("start_time ASC").Find(&a.Sessions).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ? AND status = ? AND updated_at >= ?", ownerID, models.GoalCompleted, since).
		Find(&a.CompletedGoals).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
