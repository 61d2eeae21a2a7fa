// Package digest builds the weekly performance digest: seven days of
// analytics aggregated into a summary plus coaching insights from the model.
package digest

import (
	"context"
	"fmt"
	"math"
	"mindmesh/mindmesh/services/llm"
	"mindmesh/mindmesh/sources/psql/dao"
	"mindmesh/mindmesh/sources/psql/models"
	"mindmesh/mindmesh/utils/logging"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	window          = 7 * 24 * time.Hour
	systemPrompt    = "You are a friendly cognitive performance coach providing weekly insights."
	fallbackInsight = "Unable to generate insights at this time."
	noMood          = "N/A"
)

type Summary struct {
	AvgFocus        int    `json:"avgFocus"`
	AvgProductivity int    `json:"avgProductivity"`
	AvgEnergy       int    `json:"avgEnergy"`
	AvgStress       int    `json:"avgStress"`
	AvgMood         string `json:"avgMood"`
	TotalFocusTime  int    `json:"totalFocusTime"`
	TotalSessions   int    `json:"totalSessions"`
	AvgSessionFocus int    `json:"avgSessionFocus"`
	GoalsCompleted  int    `json:"goalsCompleted"`
	MoodCheckIns    int    `json:"moodCheckIns"`
}

type Digest struct {
	UserName   string  `json:"userName"`
	WeekEnding string  `json:"weekEnding"`
	Summary    Summary `json:"summary"`
	Insights   string  `json:"insights"`
}

// Source reads the analytics tables. dao.DigestDAO implements it.
type Source interface {
	GetProfile(ctx context.Context, ownerID string) (*models.Profile, error)
	ActivitySince(ctx context.Context, ownerID string, since time.Time) (*dao.Activity, error)
}

// Completer runs a single non-streaming completion.
type Completer interface {
	Run(ctx context.Context, messages []llm.Message) (string, error)
}

// Archive keeps generated digests. storage.MinIOClient implements it.
type Archive interface {
	GetJSON(ctx context.Context, key string, v interface{}) (bool, error)
	PutJSON(ctx context.Context, key string, v interface{}) error
}

type Service struct {
	source    Source
	completer Completer
	archive   Archive
	now       func() time.Time
}

// NewService builds a digest service. archive may be nil.
func NewService(source Source, completer Completer, archive Archive) *Service {
	return &Service{source: source, completer: completer, archive: archive, now: time.Now}
}

// Key is the archive key of ownerID's digest generated on day.
func Key(ownerID string, day time.Time) string {
	return fmt.Sprintf("digests/%s/%s.json", ownerID, day.Format("2006-01-02"))
}

// Generate returns ownerID's digest for the seven days ending now. userName
// overrides the profile name when set.
func (s *Service) Generate(ctx context.Context, ownerID, userName string) (*Digest, error) {
	defer logging.LogDuration(ctx, "digest_generate")()

	now := s.now()
	key := Key(ownerID, now)
	if s.archive != nil {
		var cached Digest
		found, err := s.archive.GetJSON(ctx, key, &cached)
		if err != nil {
			logging.ErrorLogger.Error("digest archive lookup failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return &cached, nil
		}
	}

	if userName == "" {
		profile, err := s.source.GetProfile(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		userName = profile.DisplayName()
	}

	activity, err := s.source.ActivitySince(ctx, ownerID, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	summary := Summarize(activity)

	insights, err := s.completer.Run(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(userName, summary, activity.Sessions)},
	})
	if err != nil {
		logging.ErrorLogger.Error("digest insights failed", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("failed to generate AI insights: %w", err)
	}
	if strings.TrimSpace(insights) == "" {
		insights = fallbackInsight
	}

	d := &Digest{
		UserName:   userName,
		WeekEnding: now.Format("Monday, January 2, 2006"),
		Summary:    summary,
		Insights:   insights,
	}
	if s.archive != nil {
		if err := s.archive.PutJSON(ctx, key, d); err != nil {
			logging.ErrorLogger.Error("digest archive write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return d, nil
}

// Summarize aggregates one window of activity.
func Summarize(a *dao.Activity) Summary {
	var s Summary

	if n := len(a.Metrics); n > 0 {
		var focus, productivity, energy, stress int
		for _, m := range a.Metrics {
			focus += m.FocusScore
			productivity += m.Productivity
			energy += m.EnergyLevel
			stress += m.StressLevel
		}
		s.AvgFocus = roundedMean(focus, n)
		s.AvgProductivity = roundedMean(productivity, n)
		s.AvgEnergy = roundedMean(energy, n)
		s.AvgStress = roundedMean(stress, n)
	}

	s.AvgMood = noMood
	if n := len(a.Moods); n > 0 {
		var mood int
		for _, m := range a.Moods {
			mood += m.MoodScore
		}
		s.AvgMood = fmt.Sprintf("%.1f", math.Floor(float64(mood)/float64(n)*10+0.5)/10)
	}
	s.MoodCheckIns = len(a.Moods)

	if n := len(a.Sessions); n > 0 {
		var focus int
		for _, sess := range a.Sessions {
			s.TotalFocusTime += sess.DurationMinutes
			focus += sess.FocusScore
		}
		s.TotalSessions = n
		s.AvgSessionFocus = roundedMean(focus, n)
	}

	s.GoalsCompleted = len(a.CompletedGoals)
	return s
}

// roundedMean rounds half up.
func roundedMean(sum, n int) int {
	return int(math.Floor(float64(sum)/float64(n) + 0.5))
}

func buildPrompt(userName string, s Summary, sessions []models.ProductivitySession) string {
	recorded := "None recorded"
	if len(sessions) > 0 {
		parts := make([]string, 0, len(sessions))
		for _, sess := range sessions {
			parts = append(parts, fmt.Sprintf("%s: %dmin", sess.Category, sess.DurationMinutes))
		}
		recorded = strings.Join(parts, ", ")
	}

	var b strings.Builder
	b.WriteString("You are a cognitive performance coach. Based on this week's data, provide personalized insights and actionable recommendations.\n\n")
	fmt.Fprintf(&b, "Weekly Performance Summary for %s:\n", userName)
	fmt.Fprintf(&b, "- Average Focus Score: %d%%\n", s.AvgFocus)
	fmt.Fprintf(&b, "- Average Productivity: %d%%\n", s.AvgProductivity)
	fmt.Fprintf(&b, "- Average Energy Level: %d%%\n", s.AvgEnergy)
	fmt.Fprintf(&b, "- Average Stress Level: %d%%\n", s.AvgStress)
	fmt.Fprintf(&b, "- Average Mood: %s/5\n", s.AvgMood)
	fmt.Fprintf(&b, "- Total Focus Time: %d minutes across %d sessions\n", s.TotalFocusTime, s.TotalSessions)
	fmt.Fprintf(&b, "- Average Session Focus: %d%%\n", s.AvgSessionFocus)
	fmt.Fprintf(&b, "- Goals Completed: %d\n\n", s.GoalsCompleted)
	fmt.Fprintf(&b, "Mood Entries: %d check-ins this week\n", s.MoodCheckIns)
	fmt.Fprintf(&b, "Productivity Sessions: %s\n\n", recorded)
	b.WriteString("Please provide:\n")
	b.WriteString("1. A brief congratulatory message highlighting achievements\n")
	b.WriteString("2. Key insights about their cognitive patterns\n")
	b.WriteString("3. 3 specific, actionable recommendations for next week\n")
	b.WriteString("4. One motivational quote related to their performance\n\n")
	b.WriteString("Keep the tone friendly, supportive, and encouraging. Use emojis sparingly.")
	return b.String()
}
