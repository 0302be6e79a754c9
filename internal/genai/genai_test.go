package genai

import (
	"testing"
	"time"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"detail": "x"}`, `{"detail": "x"}`},
		{"```json\n{\"detail\": \"x\"}\n```", `{"detail": "x"}`},
		{"回答です。 {\"a\": 1} 以上。", `{"a": 1}`},
		{"no json here", "no json here"},
	}
	for _, c := range cases {
		if got := extractJSON(c.in); got != c.want {
			t.Errorf("extractJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeQuestions(t *testing.T) {
	in := []models.QuestionCard{
		{QuestionText: "どちらへ移動しましたか？", Choices: []models.QuestionChoice{{Label: "山側"}, {Label: "住宅側"}}},
		{QuestionText: "", Choices: []models.QuestionChoice{{ID: "c1", Label: "x"}}},
		{QuestionID: "q9", QuestionText: "数は？", Choices: []models.QuestionChoice{{ID: "c1", Label: "1頭"}}, ChoiceType: models.ChoiceTypeMultiple},
	}
	out := normalizeQuestions(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 questions after filtering, got %d", len(out))
	}
	if out[0].QuestionID == "" {
		t.Error("expected generated question id")
	}
	if out[0].ChoiceType != models.ChoiceTypeSingle {
		t.Errorf("expected default single choice type, got %s", out[0].ChoiceType)
	}
	if out[0].Choices[0].ID == "" || out[0].Choices[1].ID == "" {
		t.Error("expected generated choice ids")
	}
	if !out[0].AllowUnknown || !out[1].AllowUnknown {
		t.Error("expected AllowUnknown on every surfaced question")
	}
	if out[1].ChoiceType != models.ChoiceTypeMultiple {
		t.Errorf("expected multiple choice type preserved, got %s", out[1].ChoiceType)
	}
}

func TestNormalizeQuestionsCapsBatch(t *testing.T) {
	var in []models.QuestionCard
	for i := 0; i < 5; i++ {
		in = append(in, models.QuestionCard{
			QuestionText: "q",
			Choices:      []models.QuestionChoice{{ID: "c1", Label: "a"}},
		})
	}
	if got := len(normalizeQuestions(in)); got != MaxQuestionsPerBatch {
		t.Errorf("expected batch capped at %d, got %d", MaxQuestionsPerBatch, got)
	}
}

func TestFormatDateTimeJST(t *testing.T) {
	if got := formatDateTime(nil); got != "不明" {
		t.Errorf("expected 不明 for nil, got %q", got)
	}
	utc := time.Date(2025, 4, 1, 0, 30, 0, 0, time.UTC)
	if got := formatDateTime(&utc); got != "2025/04/01 09:30" {
		t.Errorf("expected JST formatting, got %q", got)
	}
}

func TestFormatLocation(t *testing.T) {
	if got := formatLocation(nil); got != "不明" {
		t.Errorf("expected 不明 for nil, got %q", got)
	}
	withAddr := &models.Location{Latitude: 35, Longitude: 139, Address: "長野県松本市"}
	if got := formatLocation(withAddr); got != "長野県松本市" {
		t.Errorf("expected address, got %q", got)
	}
	noAddr := &models.Location{Latitude: 35.5, Longitude: 138.25}
	if got := formatLocation(noAddr); got != "35.500000, 138.250000" {
		t.Errorf("expected coordinate fallback, got %q", got)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-4o")); err != nil {
		t.Errorf("expected client with explicit key, got error: %v", err)
	}
}
