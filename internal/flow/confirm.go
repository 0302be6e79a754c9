package flow

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// phonePattern matches domestic numbers after hyphen stripping.
var phonePattern = regexp.MustCompile(`^0\d{9,10}$`)

// ConfirmHandler owns the final draft confirmation and the phone-number
// step, including the single submission.
type ConfirmHandler struct {
	sessions store.SessionStore
	reports  ReportService
	location *LocationHandler
}

func NewConfirmHandler(sessions store.SessionStore, reports ReportService, location *LocationHandler) *ConfirmHandler {
	return &ConfirmHandler{sessions: sessions, reports: reports, location: location}
}

func (h *ConfirmHandler) Handle(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if sess.Step == models.StepPhoneNumber {
		return h.handlePhoneNumber(ctx, sess, event)
	}
	return h.handleConfirm(ctx, sess, event)
}

func (h *ConfirmHandler) handleConfirm(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type != models.EventPostback {
		if sess.State.ReportDraft != nil {
			return messages(linemsg.ReportDraftMessage(*sess.State.ReportDraft)), nil
		}
		return messages(linemsg.Text("通報内容を確認してください。")), nil
	}

	payload := postback.Decode(event.PostbackData)
	switch payload.Action {
	case postback.ActionSelectLandmark, postback.ActionSkipLandmark:
		// A lingering landmark prompt can still be tapped after the
		// draft is shown.
		return h.location.HandleLandmarkSelection(ctx, sess, payload)

	case postback.ActionConfirmReport:
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoneNumber, sess.State); err != nil {
			return nil, err
		}
		return messages(linemsg.PhoneNumberPrompt()), nil
	}

	if sess.State.ReportDraft != nil {
		return messages(linemsg.ReportDraftMessage(*sess.State.ReportDraft)), nil
	}
	return messages(linemsg.Text("通報内容を確認してください。")), nil
}

func (h *ConfirmHandler) handlePhoneNumber(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type == models.EventPostback {
		payload := postback.Decode(event.PostbackData)
		switch payload.Action {
		case postback.ActionRequestPhoneNumber:
			// The keyboard is already open from the quick reply; nothing
			// to say until a number arrives.
			return nil, nil

		case postback.ActionSkipPhoneNumber:
			return h.submitReport(ctx, sess, messages(
				linemsg.Text("LINE通報で時間がかかる場合があります。"),
			))
		}
		return messages(linemsg.PhoneNumberPrompt()), nil
	}

	if event.Type == models.EventText && event.Text != "" {
		normalized := strings.ReplaceAll(strings.TrimSpace(event.Text), "-", "")
		if !phonePattern.MatchString(normalized) {
			return messages(
				linemsg.Text("電話番号の形式が正しくありません。\n\n例: 090-1234-5678\n\nもう一度入力するか、「電話番号を送らない」を選択してください。"),
				linemsg.PhoneNumberPrompt(),
			), nil
		}

		state := sess.State
		state.PhoneNumber = normalized
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoneNumber, state); err != nil {
			return nil, err
		}
		sess.State = state
		return h.submitReport(ctx, sess, nil)
	}

	return messages(linemsg.PhoneNumberPrompt()), nil
}

// submitReport persists the report exactly once and completes the
// session. A submission failure propagates as an error; the session is
// left incomplete so the user can retry.
func (h *ConfirmHandler) submitReport(ctx context.Context, sess *models.Session, preamble []messaging_api.MessageInterface) ([]messaging_api.MessageInterface, error) {
	r, err := h.reports.Submit(ctx, sess)
	if err != nil {
		return nil, err
	}

	if _, err := h.sessions.Save(sess.UserID, models.StepComplete, sess.State); err != nil {
		return nil, err
	}
	slog.Info("ConfirmHandler.submitReport: report submitted", "userID", sess.UserID, "reportID", r.ID)

	msgs := append(preamble, linemsg.Text("📤 通報を送信中です。"))
	return append(msgs, linemsg.CompletionMessage(h.reports.EditURL(r), h.reports.MapURL(r))), nil
}
