package digest

import (
	"context"
	"encoding/json"
	"errors"
	"mindmesh/mindmesh/services/llm"
	"mindmesh/mindmesh/sources/psql/dao"
	"mindmesh/mindmesh/sources/psql/models"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	profile  *models.Profile
	activity *dao.Activity
	since    time.Time
}

func (f *fakeSource) GetProfile(ctx context.Context, ownerID string) (*models.Profile, error) {
	return f.profile, nil
}

func (f *fakeSource) ActivitySince(ctx context.Context, ownerID string, since time.Time) (*dao.Activity, error) {
	f.since = since
	return f.activity, nil
}

type fakeCompleter struct {
	reply    string
	err      error
	messages []llm.Message
	calls    int
}

func (f *fakeCompleter) Run(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls++
	f.messages = messages
	return f.reply, f.err
}

type memArchive struct {
	objects map[string][]byte
	puts    int
}

func (m *memArchive) GetJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	data, ok := m.objects[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}

func (m *memArchive) PutJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.puts++
	m.objects[key] = data
	return nil
}

var fixedNow = time.Date(2026, 3, 9, 18, 0, 0, 0, time.UTC)

func newTestService(src Source, c Completer, a Archive) *Service {
	s := NewService(src, c, a)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSummarizeRoundsHalfUp(t *testing.T) {
	a := &dao.Activity{
		Metrics: []models.CognitiveMetric{
			{FocusScore: 70, Productivity: 60, EnergyLevel: 50, StressLevel: 41},
			{FocusScore: 71, Productivity: 61, EnergyLevel: 52, StressLevel: 40},
		},
		Moods: []models.MoodEntry{{MoodScore: 3}, {MoodScore: 4}, {MoodScore: 4}},
		Sessions: []models.ProductivitySession{
			{DurationMinutes: 25, FocusScore: 80, Category: "writing"},
			{DurationMinutes: 50, FocusScore: 85, Category: "coding"},
		},
		CompletedGoals: []models.Goal{{Title: "Read"}},
	}
	s := Summarize(a)

	if s.AvgFocus != 71 || s.AvgProductivity != 61 || s.AvgEnergy != 51 || s.AvgStress != 41 {
		t.Errorf("metric averages: %+v", s)
	}
	if s.AvgMood != "3.7" || s.MoodCheckIns != 3 {
		t.Errorf("mood: %q / %d", s.AvgMood, s.MoodCheckIns)
	}
	if s.TotalFocusTime != 75 || s.TotalSessions != 2 || s.AvgSessionFocus != 83 {
		t.Errorf("sessions: %+v", s)
	}
	if s.GoalsCompleted != 1 {
		t.Errorf("goals: %d", s.GoalsCompleted)
	}
}

func TestSummarizeEmptyWeek(t *testing.T) {
	s := Summarize(&dao.Activity{})
	if s.AvgMood != "N/A" {
		t.Errorf("mood without entries: %q", s.AvgMood)
	}
	if s.AvgFocus != 0 || s.TotalSessions != 0 || s.AvgSessionFocus != 0 {
		t.Errorf("expected zeros, got %+v", s)
	}
}

func TestGenerateBuildsPromptAndArchives(t *testing.T) {
	name := "Ada Lovelace"
	src := &fakeSource{
		profile: &models.Profile{ID: "u1", FullName: &name},
		activity: &dao.Activity{
			Sessions: []models.ProductivitySession{{DurationMinutes: 45, FocusScore: 90, Category: "deep work"}},
		},
	}
	completer := &fakeCompleter{reply: "Great week!"}
	archive := &memArchive{objects: map[string][]byte{}}
	svc := newTestService(src, completer, archive)

	d, err := svc.Generate(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.UserName != "Ada Lovelace" || d.Insights != "Great week!" {
		t.Errorf("digest: %+v", d)
	}
	if d.WeekEnding != "Monday, March 9, 2026" {
		t.Errorf("week ending: %q", d.WeekEnding)
	}
	if !src.since.Equal(fixedNow.Add(-7 * 24 * time.Hour)) {
		t.Errorf("window start: %v", src.since)
	}

	if len(completer.messages) != 2 || completer.messages[0].Content != systemPrompt {
		t.Fatalf("messages: %+v", completer.messages)
	}
	prompt := completer.messages[1].Content
	for _, want := range []string{
		"Weekly Performance Summary for Ada Lovelace:",
		"- Average Mood: N/A/5",
		"- Total Focus Time: 45 minutes across 1 sessions",
		"Productivity Sessions: deep work: 45min",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	if _, ok := archive.objects["digests/u1/2026-03-09.json"]; !ok {
		t.Fatalf("digest not archived: %v", archive.objects)
	}

	again, err := svc.Generate(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if completer.calls != 1 || archive.puts != 1 {
		t.Errorf("archived digest should be reused, calls=%d puts=%d", completer.calls, archive.puts)
	}
	if again.Insights != d.Insights {
		t.Errorf("archived digest differs: %+v", again)
	}
}

func TestGenerateFallbacks(t *testing.T) {
	src := &fakeSource{activity: &dao.Activity{}}
	svc := newTestService(src, &fakeCompleter{reply: "  "}, nil)

	d, err := svc.Generate(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if d.UserName != "User" {
		t.Errorf("user name fallback: %q", d.UserName)
	}
	if d.Insights != "Unable to generate insights at this time." {
		t.Errorf("insights fallback: %q", d.Insights)
	}

	d, _ = svc.Generate(context.Background(), "u1", "Sam")
	if d.UserName != "Sam" {
		t.Errorf("explicit name ignored: %q", d.UserName)
	}
}

func TestGenerateGatewayFailure(t *testing.T) {
	src := &fakeSource{activity: &dao.Activity{}}
	archive := &memArchive{objects: map[string][]byte{}}
	svc := newTestService(src, &fakeCompleter{err: llm.ErrQuotaExhausted}, archive)

	_, err := svc.Generate(context.Background(), "u1", "Sam")
	if !errors.Is(err, llm.ErrQuotaExhausted) {
		t.Fatalf("expected wrapped gateway error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "failed to generate AI insights") {
		t.Errorf("message: %q", err.Error())
	}
	if archive.puts != 0 {
		t.Errorf("failed digest must not be archived")
	}
}
