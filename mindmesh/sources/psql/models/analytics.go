// mindmesh/sources/psql/models/analytics.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// The analytics tables are written by the dashboard; the digest only reads them.

type CognitiveMetric struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       string    `json:"user_id" gorm:"type:varchar(255);not null;index"`
	FocusScore   int       `json:"focus_score"`
	EnergyLevel  int       `json:"energy_level"`
	Productivity int       `json:"productivity"`
	StressLevel  int       `json:"stress_level"`
	RecordedAt   time.Time `json:"recorded_at" gorm:"not null;index"`
}

func (CognitiveMetric) TableName() string {
	return "cognitive_metrics"
}

type MoodEntry struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       string    `json:"user_id" gorm:"type:varchar(255);not null;index"`
	MoodScore    int       `json:"mood_score" gorm:"not null"`
	AnxietyLevel int       `json:"anxiety_level"`
	StressLevel  int       `json:"stress_level"`
	EnergyLevel  int       `json:"energy_level"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

func (MoodEntry) TableName() string {
	return "mood_entries"
}

type ProductivitySession struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID          string    `json:"user_id" gorm:"type:varchar(255);not null;index"`
	DurationMinutes int       `json:"duration_minutes"`
	FocusScore      int       `json:"focus_score"`
	Category        string    `json:"category" gorm:"type:varchar(100)"`
	StartTime       time.Time `json:"start_time" gorm:"not null;index"`
}

func (ProductivitySession) TableName() string {
	return "productivity_sessions"
}

type GoalStatus string

const GoalCompleted GoalStatus = "completed"

type Goal struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string     `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Title     string     `json:"title" gorm:"type:varchar(255);not null"`
	Status    GoalStatus `json:"status" gorm:"type:varchar(50);not null"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Goal) TableName() string {
	return "goals"
}

func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (m *CognitiveMetric) BeforeCreate(tx *gorm.DB) error     { newID(&m.ID); return nil }
func (m *MoodEntry) BeforeCreate(tx *gorm.DB) error           { newID(&m.ID); return nil }
func (s *ProductivitySession) BeforeCreate(tx *gorm.DB) error { newID(&s.ID); return nil }
func (g *Goal) BeforeCreate(tx *gorm.DB) error                { newID(&g.ID); return nil }
