package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
)

func threeQuestions() []models.QuestionCard {
	return []models.QuestionCard{
		{
			QuestionID:   "q1",
			QuestionText: "何頭いましたか？",
			Choices: []models.QuestionChoice{
				{ID: "c1", Label: "1頭"},
				{ID: "c2", Label: "2〜3頭"},
			},
			ChoiceType: models.ChoiceTypeSingle,
			CaptureKey: "count",
		},
		{
			QuestionID:   "q2",
			QuestionText: "人との距離は？",
			Choices: []models.QuestionChoice{
				{ID: "c1", Label: "10m以内"},
				{ID: "c2", Label: "遠い"},
			},
			ChoiceType: models.ChoiceTypeSingle,
			CaptureKey: "distance",
		},
		{
			QuestionID:   "q3",
			QuestionText: "今もその場にいますか？",
			Choices: []models.QuestionChoice{
				{ID: "c1", Label: "はい"},
				{ID: "c2", Label: "いいえ"},
			},
			ChoiceType: models.ChoiceTypeSingle,
			CaptureKey: "present",
		},
	}
}

func categorySession(env *testEnv, t *testing.T) *models.Session {
	t.Helper()
	state := models.NewSessionState()
	state.AnimalType = "deer"
	state.Situation = "畑の脇で目撃"
	return env.seed(t, "user-1", models.StepActionCategory, state)
}

func TestActionCategorySelectionBatchesQuestions(t *testing.T) {
	env := newTestEnv()
	env.ai.questions = threeQuestions()
	h := NewActionDetailHandler(env.sessions, env.ai)
	sess := categorySession(env, t)

	msgs, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionSelectAction, Value: "feeding"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if env.ai.batchCalls != 1 {
		t.Fatalf("batchCalls = %d, want 1", env.ai.batchCalls)
	}
	if !strings.Contains(textOf(t, msgs[0]), "何頭いましたか") {
		t.Errorf("expected the first question, got %q", textOf(t, msgs[0]))
	}

	saved := env.mustFind(t, "user-1")
	if saved.Step != models.StepActionQuestion {
		t.Errorf("step = %s, want %s", saved.Step, models.StepActionQuestion)
	}
	if saved.State.ActionCategory != "feeding" {
		t.Errorf("actionCategory = %q, want feeding", saved.State.ActionCategory)
	}
	if saved.State.ActionQuestionCount != 1 {
		t.Errorf("actionQuestionCount = %d, want 1", saved.State.ActionQuestionCount)
	}
	if saved.State.CurrentQuestion == nil || saved.State.CurrentQuestion.QuestionID != "q1" {
		t.Errorf("currentQuestion = %+v, want q1", saved.State.CurrentQuestion)
	}
	if len(saved.State.QuestionQueue) != 2 {
		t.Errorf("questionQueue length = %d, want 2", len(saved.State.QuestionQueue))
	}
}

func TestActionCategoryInvalidValueReshowsPicker(t *testing.T) {
	env := newTestEnv()
	h := NewActionDetailHandler(env.sessions, env.ai)
	sess := categorySession(env, t)

	if _, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionSelectAction, Value: "flying"})); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if env.ai.batchCalls != 0 {
		t.Errorf("no questions may be generated for an invalid category")
	}
	if saved := env.mustFind(t, "user-1"); saved.Step != models.StepActionCategory {
		t.Errorf("step = %s, want %s", saved.Step, models.StepActionCategory)
	}
}

func TestActionQuestionQueuePopNeedsNoAICall(t *testing.T) {
	env := newTestEnv()
	h := NewActionDetailHandler(env.sessions, env.ai)

	qs := threeQuestions()
	state := models.NewSessionState()
	state.AnimalType = "deer"
	state.ActionCategory = "feeding"
	state.ActionQuestionCount = 1
	state.CurrentQuestion = &qs[0]
	state.QuestionQueue = qs[1:]
	sess := env.seed(t, "user-1", models.StepActionQuestion, state)

	msgs, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionAnswerQuestion, QID: "q1", CID: "c2"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if env.ai.batchCalls != 0 || env.ai.detailCalls != 0 {
		t.Errorf("a queued question must not trigger an AI call")
	}
	if !strings.Contains(textOf(t, msgs[0]), "人との距離は") {
		t.Errorf("expected the next queued question, got %q", textOf(t, msgs[0]))
	}

	saved := env.mustFind(t, "user-1")
	if saved.State.ActionQuestionCount != 2 {
		t.Errorf("actionQuestionCount = %d, want 2", saved.State.ActionQuestionCount)
	}
	if len(saved.State.QuestionQueue) != 1 {
		t.Errorf("questionQueue length = %d, want 1", len(saved.State.QuestionQueue))
	}
	answers := saved.State.ActionQuestionAnswers
	if len(answers) != 1 || answers[0].SelectedChoiceLabels[0] != "2〜3頭" {
		t.Errorf("unexpected answers: %+v", answers)
	}
}

func TestActionQuestionEmptyQueueGeneratesDetail(t *testing.T) {
	env := newTestEnv()
	env.ai.detail = "3頭のシカが稲を食べていた"
	h := NewActionDetailHandler(env.sessions, env.ai)

	qs := threeQuestions()
	state := models.NewSessionState()
	state.AnimalType = "deer"
	state.ActionCategory = "feeding"
	state.ActionQuestionCount = 3
	state.CurrentQuestion = &qs[2]
	sess := env.seed(t, "user-1", models.StepActionQuestion, state)

	msgs, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionAnswerQuestion, QID: "q3", CID: "c1"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if env.ai.detailCalls != 1 {
		t.Fatalf("detailCalls = %d, want 1", env.ai.detailCalls)
	}
	if !strings.Contains(textOf(t, msgs[0]), "3頭のシカが稲を食べていた") {
		t.Errorf("expected the detail confirmation, got %q", textOf(t, msgs[0]))
	}

	saved := env.mustFind(t, "user-1")
	if saved.Step != models.StepActionDetailConfirm {
		t.Errorf("step = %s, want %s", saved.Step, models.StepActionDetailConfirm)
	}
	if saved.State.ActionDetail != "3頭のシカが稲を食べていた" {
		t.Errorf("actionDetail = %q", saved.State.ActionDetail)
	}
	if saved.State.CurrentQuestion != nil {
		t.Errorf("currentQuestion must be cleared")
	}
}

func TestActionQuestionStaleAnswerIgnored(t *testing.T) {
	env := newTestEnv()
	h := NewActionDetailHandler(env.sessions, env.ai)

	qs := threeQuestions()
	state := models.NewSessionState()
	state.CurrentQuestion = &qs[1]
	state.ActionQuestionCount = 2
	sess := env.seed(t, "user-1", models.StepActionQuestion, state)

	msgs, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionAnswerQuestion, QID: "q1", CID: "c1"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(textOf(t, msgs[0]), "質問の回答をボタンで選択してください") {
		t.Errorf("unexpected message: %q", textOf(t, msgs[0]))
	}
	saved := env.mustFind(t, "user-1")
	if len(saved.State.ActionQuestionAnswers) != 0 {
		t.Errorf("a stale answer must not be recorded")
	}
	if saved.State.ActionQuestionCount != 2 {
		t.Errorf("actionQuestionCount = %d, want unchanged 2", saved.State.ActionQuestionCount)
	}
}

func TestActionCategoryBatchFailureSkipsToDetail(t *testing.T) {
	env := newTestEnv()
	env.ai.questionsErr = errors.New("model unavailable")
	env.ai.detailErr = errors.New("model unavailable")
	h := NewActionDetailHandler(env.sessions, env.ai)
	sess := categorySession(env, t)

	msgs, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionSelectAction, Value: "damage"}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	// Both AI calls failed: the raw situation stands in as the detail.
	if !strings.Contains(textOf(t, msgs[0]), "畑の脇で目撃") {
		t.Errorf("expected the situation fallback, got %q", textOf(t, msgs[0]))
	}
	saved := env.mustFind(t, "user-1")
	if saved.Step != models.StepActionDetailConfirm {
		t.Errorf("step = %s, want %s", saved.Step, models.StepActionDetailConfirm)
	}
	if saved.State.ActionDetail != "畑の脇で目撃" {
		t.Errorf("actionDetail = %q, want the situation text", saved.State.ActionDetail)
	}
}

func TestDetailConfirmPromotesDetailAndBuildsDraft(t *testing.T) {
	env := newTestEnv()
	h := NewActionDetailHandler(env.sessions, env.ai)

	state := models.NewSessionState()
	state.AnimalType = "deer"
	state.Situation = "元の状況"
	state.ActionDetail = "3頭のシカが稲を食べていた"
	sess := env.seed(t, "user-1", models.StepActionDetailConfirm, state)

	msgs, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionConfirmDetail}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected the generating notice plus the draft, got %d messages", len(msgs))
	}
	if !strings.Contains(textOf(t, msgs[0]), "サマリを作成中") {
		t.Errorf("unexpected first message: %q", textOf(t, msgs[0]))
	}

	saved := env.mustFind(t, "user-1")
	if saved.Step != models.StepConfirm {
		t.Errorf("step = %s, want %s", saved.Step, models.StepConfirm)
	}
	if saved.State.Situation != "3頭のシカが稲を食べていた" {
		t.Errorf("situation = %q, want the confirmed detail", saved.State.Situation)
	}
	// No draft AI configured: the deterministic fallback fills the card.
	if saved.State.ReportDraft == nil || saved.State.ReportDraft.What != "シカ" {
		t.Errorf("reportDraft = %+v", saved.State.ReportDraft)
	}
}

func TestDetailRestartClearsEverything(t *testing.T) {
	env := newTestEnv()
	h := NewActionDetailHandler(env.sessions, env.ai)

	qs := threeQuestions()
	state := models.NewSessionState()
	state.ActionCategory = "feeding"
	state.ActionQuestionAnswers = []models.QuestionAnswer{{QuestionID: "q1"}}
	state.ActionQuestionCount = 3
	state.CurrentQuestion = &qs[0]
	state.ActionDetail = "やり直したい内容"
	sess := env.seed(t, "user-1", models.StepActionDetailConfirm, state)

	msgs, err := h.Handle(context.Background(), sess,
		postbackEvent(postback.Data{Action: postback.ActionRestartDetail}))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected the guidance and the category picker, got %d messages", len(msgs))
	}

	saved := env.mustFind(t, "user-1")
	if saved.Step != models.StepActionCategory {
		t.Errorf("step = %s, want %s", saved.Step, models.StepActionCategory)
	}
	st := saved.State
	if st.ActionCategory != "" || st.ActionDetail != "" || st.ActionQuestionCount != 0 ||
		st.CurrentQuestion != nil || len(st.ActionQuestionAnswers) != 0 {
		t.Errorf("restart must clear the deep-dive state, got %+v", st)
	}
}
