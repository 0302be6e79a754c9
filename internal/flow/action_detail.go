package flow

import (
	"context"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/genai"
	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/report"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// ActionDetailHandler owns the behavior deep-dive: category selection,
// the AI question loop, and the detail confirmation.
type ActionDetailHandler struct {
	sessions store.SessionStore
	ai       genai.ClientInterface
}

func NewActionDetailHandler(sessions store.SessionStore, ai genai.ClientInterface) *ActionDetailHandler {
	return &ActionDetailHandler{sessions: sessions, ai: ai}
}

func (h *ActionDetailHandler) Handle(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	switch sess.Step {
	case models.StepActionCategory:
		return h.handleCategory(ctx, sess, event)
	case models.StepActionQuestion:
		return h.handleQuestion(ctx, sess, event)
	case models.StepActionDetailConfirm:
		return h.handleDetailConfirm(ctx, sess, event)
	default:
		return linemsg.ActionCategoryMessages(), nil
	}
}

func (h *ActionDetailHandler) handleCategory(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type != models.EventPostback {
		return linemsg.ActionCategoryMessages(), nil
	}
	payload := postback.Decode(event.PostbackData)
	if payload.Action != postback.ActionSelectAction || !models.IsValidActionCategory(payload.Value) {
		return linemsg.ActionCategoryMessages(), nil
	}

	// A category selection resets every per-category counter.
	state := sess.State
	state.ActionCategory = payload.Value
	state.ActionQuestionAnswers = nil
	state.ActionQuestionCount = 0
	state.CurrentQuestion = nil
	state.QuestionQueue = nil
	if _, err := h.sessions.Save(sess.UserID, models.StepActionQuestion, state); err != nil {
		return nil, err
	}
	slog.Debug("ActionDetailHandler.handleCategory: category selected", "userID", sess.UserID, "category", payload.Value)

	return h.generateAllQuestions(ctx, sess.UserID, state)
}

// generateAllQuestions requests the whole question batch in one AI call,
// shows the first and queues the rest.
func (h *ActionDetailHandler) generateAllQuestions(ctx context.Context, userID string, state models.SessionState) ([]messaging_api.MessageInterface, error) {
	questions, err := h.ai.GenerateQuestionBatch(ctx, h.questionContext(state))
	if err != nil || len(questions) == 0 {
		if err != nil {
			slog.Warn("ActionDetailHandler.generateAllQuestions: batch failed, skipping to detail", "error", err, "userID", userID)
		}
		return h.generateActionDetail(ctx, userID, state)
	}

	state.ActionQuestionCount = 1
	state.CurrentQuestion = &questions[0]
	state.QuestionQueue = questions[1:]
	if _, err := h.sessions.Save(userID, models.StepActionQuestion, state); err != nil {
		return nil, err
	}
	return messages(linemsg.QuestionMessage(questions[0])), nil
}

// generateActionDetail condenses the Q&A history; on failure the raw
// situation text stands in so the flow never dead-ends.
func (h *ActionDetailHandler) generateActionDetail(ctx context.Context, userID string, state models.SessionState) ([]messaging_api.MessageInterface, error) {
	detail, err := h.ai.GenerateActionDetail(ctx, h.questionContext(state))
	if err != nil || detail == "" {
		if err != nil {
			slog.Warn("ActionDetailHandler.generateActionDetail: generation failed, using situation", "error", err, "userID", userID)
		}
		detail = state.Situation
	}

	state.ActionDetail = detail
	if _, err := h.sessions.Save(userID, models.StepActionDetailConfirm, state); err != nil {
		return nil, err
	}
	return messages(linemsg.ActionDetailConfirmPrompt(detail)), nil
}

func (h *ActionDetailHandler) handleQuestion(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type != models.EventPostback {
		return messages(linemsg.Text("質問の回答をボタンで選択してください。")), nil
	}
	payload := postback.Decode(event.PostbackData)
	if payload.Action != postback.ActionAnswerQuestion {
		return messages(linemsg.Text("質問の回答をボタンで選択してください。")), nil
	}

	current := sess.State.CurrentQuestion
	// Stale or foreign answers are input mismatches, not errors.
	if current == nil || payload.QID != current.QuestionID {
		slog.Debug("ActionDetailHandler.handleQuestion: stale answer ignored", "userID", sess.UserID, "qid", payload.QID)
		return messages(linemsg.Text("質問の回答をボタンで選択してください。")), nil
	}

	choiceLabel := payload.CID
	for _, c := range current.Choices {
		if c.ID == payload.CID {
			choiceLabel = c.Label
			break
		}
	}
	answer := models.QuestionAnswer{
		QuestionID:           current.QuestionID,
		QuestionText:         current.QuestionText,
		SelectedChoiceIDs:    []string{payload.CID},
		SelectedChoiceLabels: []string{choiceLabel},
		CaptureKey:           current.CaptureKey,
	}

	state := sess.State
	state.ActionQuestionAnswers = append(state.ActionQuestionAnswers, answer)

	// A queued question needs no AI call.
	if len(state.QuestionQueue) > 0 {
		next := state.QuestionQueue[0]
		state.QuestionQueue = state.QuestionQueue[1:]
		state.CurrentQuestion = &next
		state.ActionQuestionCount++
		if _, err := h.sessions.Save(sess.UserID, models.StepActionQuestion, state); err != nil {
			return nil, err
		}
		return messages(linemsg.QuestionMessage(next)), nil
	}

	state.CurrentQuestion = nil
	state.QuestionQueue = nil
	return h.generateActionDetail(ctx, sess.UserID, state)
}

func (h *ActionDetailHandler) handleDetailConfirm(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type != models.EventPostback {
		if sess.State.ActionDetail != "" {
			return messages(linemsg.ActionDetailConfirmPrompt(sess.State.ActionDetail)), nil
		}
		return messages(linemsg.Text("行動詳細を確認してください。")), nil
	}

	payload := postback.Decode(event.PostbackData)
	switch payload.Action {
	case postback.ActionConfirmDetail:
		state := sess.State
		if state.ActionDetail != "" {
			state.Situation = state.ActionDetail
		}
		if _, err := h.sessions.Save(sess.UserID, models.StepConfirm, state); err != nil {
			return nil, err
		}
		draftMsgs, err := h.generateDraft(ctx, sess.UserID, state)
		if err != nil {
			return nil, err
		}
		return append(messages(linemsg.DraftGeneratingMessage()), draftMsgs...), nil

	case postback.ActionRestartDetail:
		state := sess.State
		state.ActionCategory = ""
		state.ActionQuestionAnswers = nil
		state.ActionQuestionCount = 0
		state.CurrentQuestion = nil
		state.QuestionQueue = nil
		state.ActionDetail = ""
		if _, err := h.sessions.Save(sess.UserID, models.StepActionCategory, state); err != nil {
			return nil, err
		}
		return linemsg.ActionCategoryMessages(), nil
	}

	detail := sess.State.ActionDetail
	if detail == "" {
		detail = sess.State.Situation
	}
	return messages(linemsg.ActionDetailConfirmPrompt(detail)), nil
}

// generateDraft builds the report draft, falling back to a deterministic
// local draft when generation fails.
func (h *ActionDetailHandler) generateDraft(ctx context.Context, userID string, state models.SessionState) ([]messaging_api.MessageInterface, error) {
	draft, err := h.ai.GenerateDraft(ctx, genai.DraftContext{
		AnimalType: state.AnimalType,
		Situation:  state.Situation,
		DateTime:   state.DateTime,
		Location:   state.Location,
	})
	if err != nil || draft == nil {
		if err != nil {
			slog.Warn("ActionDetailHandler.generateDraft: generation failed, using local draft", "error", err, "userID", userID)
		}
		draft = &models.ReportDraft{
			When:      report.FormatDateTimeJa(state.DateTime),
			Where:     report.FormatLocation(state.Location),
			What:      models.AnimalTypeLabel(state.AnimalType),
			Situation: state.Situation,
		}
	}

	state.ReportDraft = draft
	if _, err := h.sessions.Save(userID, models.StepConfirm, state); err != nil {
		return nil, err
	}
	return messages(linemsg.ReportDraftMessage(*draft)), nil
}

func (h *ActionDetailHandler) questionContext(state models.SessionState) genai.QuestionContext {
	return genai.QuestionContext{
		AnimalType:      state.AnimalType,
		ActionCategory:  state.ActionCategory,
		Situation:       state.Situation,
		PreviousAnswers: state.ActionQuestionAnswers,
		DateTime:        state.DateTime,
		Location:        state.Location,
	}
}
