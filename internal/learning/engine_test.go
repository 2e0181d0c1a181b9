package learning

import (
	"math"
	"testing"
	"time"

	"github.com/ShayCichocki/conclave/internal/evaluator"
	"github.com/ShayCichocki/conclave/internal/knowledge"
	"github.com/ShayCichocki/conclave/pkg/models"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type entry struct {
	agent     string
	taskType  models.TaskType
	reasoning string
	success   bool
	lessons   []string
}

func seed(t *testing.T, entries []entry, opts ...knowledge.Option) *knowledge.Base {
	t.Helper()
	kb, err := knowledge.New(t.TempDir(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range entries {
		kb.AddDecision(models.Decision{
			TaskID:    "task",
			TaskType:  e.taskType,
			Timestamp: epoch.Add(time.Duration(i) * time.Minute),
			Decision:  models.DecisionChoice{AgentID: e.agent, Reasoning: e.reasoning},
			Outcome:   models.DecisionOutcome{Success: e.success},
			Lessons:   e.lessons,
		})
	}
	return kb
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLearnStrategies(t *testing.T) {
	kb := seed(t, []entry{
		{agent: "backend", taskType: models.TaskTypeFeature, success: true},
		{agent: "frontend", taskType: models.TaskTypeFeature, success: false},
		{agent: "backend", taskType: models.TaskTypeFeature, success: true},
		{agent: "frontend", taskType: models.TaskTypeFeature, success: true},
		{agent: "qa", taskType: models.TaskTypeFeature, success: true},
		{agent: "devops", taskType: models.TaskTypeFeature, success: false},
		{agent: "analyst", taskType: models.TaskTypeFeature, success: false},
		{agent: "analyst", taskType: models.TaskTypeFeature, success: true},
		{agent: "analyst", taskType: models.TaskTypeFeature, success: false},
		{agent: "qa", reasoning: "fix crash when the cart is empty", success: true},
	})
	e := NewEngine(kb)
	summary := e.Learn()

	if summary.Decisions != 6 {
		t.Errorf("Decisions = %d, want 6", summary.Decisions)
	}
	if summary.Inferred != 1 {
		t.Errorf("Inferred = %d, want 1", summary.Inferred)
	}

	feature, ok := e.Strategy(models.TaskTypeFeature)
	if !ok {
		t.Fatal("no feature strategy")
	}
	if want := []string{"backend", "qa", "frontend"}; !equal(feature.PreferredAgents, want) {
		t.Errorf("PreferredAgents = %v, want %v", feature.PreferredAgents, want)
	}
	wantWeights := map[string]float64{"backend": 1, "qa": 1, "frontend": 0.5, "devops": 0, "analyst": 1.0 / 3}
	for id, w := range wantWeights {
		if math.Abs(feature.Weights[id]-w) > 1e-9 {
			t.Errorf("Weights[%s] = %v, want %v", id, feature.Weights[id], w)
		}
	}

	bug, ok := e.Strategy(models.TaskTypeBug)
	if !ok || !equal(bug.PreferredAgents, []string{"qa"}) {
		t.Errorf("bug strategy = %+v, %v", bug, ok)
	}
	if got := e.Strategies(); len(got) != 2 {
		t.Errorf("Strategies() = %v", got)
	}
}

func TestLearnReplacesStrategies(t *testing.T) {
	kb := seed(t, []entry{
		{agent: "qa", taskType: models.TaskTypeBug, success: true},
	}, knowledge.WithMaxHistory(2))
	e := NewEngine(kb)
	e.Learn()
	if _, ok := e.Strategy(models.TaskTypeBug); !ok {
		t.Fatal("expected bug strategy after first pass")
	}

	for i := 0; i < 2; i++ {
		kb.AddDecision(models.Decision{
			TaskType:  models.TaskTypeFeature,
			Timestamp: epoch.Add(time.Hour + time.Duration(i)*time.Minute),
			Decision:  models.DecisionChoice{AgentID: "backend"},
			Outcome:   models.DecisionOutcome{Success: true},
		})
	}
	e.Learn()
	if _, ok := e.Strategy(models.TaskTypeBug); ok {
		t.Error("bug strategy survived a pass with no bug history")
	}
	if s, ok := e.Strategy(models.TaskTypeFeature); !ok || !equal(s.PreferredAgents, []string{"backend"}) {
		t.Errorf("feature strategy = %+v", s)
	}
}

func TestLearnWindowStartsAtOldestRecentSuccess(t *testing.T) {
	var entries []entry
	// failures before the window must not drag qa's rate down
	for i := 0; i < 5; i++ {
		entries = append(entries, entry{agent: "qa", taskType: models.TaskTypeBug, success: false})
	}
	for i := 0; i < recentSuccesses; i++ {
		entries = append(entries, entry{agent: "qa", taskType: models.TaskTypeBug, success: true})
	}
	e := NewEngine(seed(t, entries))
	e.Learn()
	s, _ := e.Strategy(models.TaskTypeBug)
	if s.Weights["qa"] != 1 {
		t.Errorf("qa rate = %v, want 1", s.Weights["qa"])
	}
}

func TestRecommendAgents(t *testing.T) {
	kb := seed(t, []entry{
		{agent: "backend", taskType: models.TaskTypeFeature, success: true},
		{agent: "architect", taskType: models.TaskTypeFeature, success: true},
	})
	e := NewEngine(kb)
	e.Learn()

	tests := []struct {
		name      string
		task      models.Task
		available []string
		want      []string
	}{
		{"intersection in preference order", models.Task{Type: models.TaskTypeFeature}, []string{"qa", "backend", "architect"}, []string{"architect", "backend"}},
		{"no overlap returns all", models.Task{Type: models.TaskTypeFeature}, []string{"qa", "devops"}, []string{"qa", "devops"}},
		{"no strategy returns all", models.Task{Type: models.TaskTypeBug}, []string{"qa"}, []string{"qa"}},
		{"type inferred from description", models.Task{Description: "add a checkout page"}, []string{"backend"}, []string{"backend"}},
		{"nothing available", models.Task{Type: models.TaskTypeFeature}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.RecommendAgents(tt.task, tt.available)
			if !equal(got, tt.want) {
				t.Errorf("RecommendAgents() = %v, want %v", got, tt.want)
			}
			if len(tt.available) > 0 && len(got) == 0 {
				t.Error("empty recommendation with agents available")
			}
		})
	}
}

func TestCriterionWeightsFromLessons(t *testing.T) {
	kb := seed(t, []entry{
		{agent: "backend", success: true, lessons: []string{"validate auth tokens", "watch for secret leaks"}},
		{agent: "backend", success: true, lessons: []string{"cache the lookup"}},
		{agent: "backend", success: false, lessons: []string{"security security security"}},
	})
	e := NewEngine(kb)
	summary := e.Learn()

	if summary.LessonHits[evaluator.Security] != 2 || summary.LessonHits[evaluator.Performance] != 1 {
		t.Errorf("LessonHits = %v", summary.LessonHits)
	}

	w := e.CriterionWeights()
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum = %v", sum)
	}
	defaults := evaluator.DefaultWeights()
	if w[evaluator.Security] <= defaults[evaluator.Security] {
		t.Errorf("security weight %v not boosted above %v", w[evaluator.Security], defaults[evaluator.Security])
	}
	if w[evaluator.Security] <= w[evaluator.Performance] || w[evaluator.Performance] <= w[evaluator.Quality] {
		t.Errorf("weights not ordered by hits: %s", evaluator.FormatWeights(w))
	}
}

func TestCriterionWeightsDefaultWithoutLessons(t *testing.T) {
	e := NewEngine(seed(t, []entry{{agent: "a", success: true}}))
	e.Learn()
	for c, want := range evaluator.DefaultWeights() {
		if got := e.CriterionWeights()[c]; math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c, got, want)
		}
	}
}

func TestApplyTo(t *testing.T) {
	e := NewEngine(seed(t, []entry{{agent: "a", success: true, lessons: []string{"tighten security"}}}))
	e.Learn()
	ev := evaluator.New(nil)
	e.ApplyTo(ev)

	want := e.CriterionWeights()
	for c, w := range ev.Weights() {
		if math.Abs(w-want[c]) > 1e-9 {
			t.Errorf("evaluator %s = %v, want %v", c, w, want[c])
		}
	}
}

func TestInferTaskType(t *testing.T) {
	tests := []struct {
		text string
		want models.TaskType
	}{
		{"Fix the crash on logout", models.TaskTypeBug},
		{"Refactor the payment module", models.TaskTypeRefactoring},
		{"Update the README", models.TaskTypeDocumentation},
		{"Review coverage of the API", models.TaskTypeQualityCheck},
		{"Optimize image loading", models.TaskTypeImprovement},
		{"Add dark mode", models.TaskTypeFeature},
		{"", models.TaskTypeFeature},
	}
	for _, tt := range tests {
		if got := InferTaskType(tt.text); got != tt.want {
			t.Errorf("InferTaskType(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}
