package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// jst is the display zone for all user-facing timestamps.
var jst = time.FixedZone("Asia/Tokyo", 9*60*60)

// datetimePickerLayout is the wire format the datetime picker posts back.
const datetimePickerLayout = "2006-01-02T15:04"

// DateTimeHandler owns the datetime step.
type DateTimeHandler struct {
	sessions store.SessionStore
}

func NewDateTimeHandler(sessions store.SessionStore) *DateTimeHandler {
	return &DateTimeHandler{sessions: sessions}
}

func (h *DateTimeHandler) Handle(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type != models.EventPostback {
		return messages(linemsg.DateTimePrompt()), nil
	}

	payload := postback.Decode(event.PostbackData)
	switch payload.Action {
	case postback.ActionDateTimeNow:
		return h.saveDateTime(sess, time.Now().In(jst))

	case postback.ActionSelectDateTime:
		raw := event.PostbackParams["datetime"]
		t, err := time.ParseInLocation(datetimePickerLayout, raw, jst)
		if err != nil {
			slog.Warn("DateTimeHandler.Handle: unparseable picker value", "userID", sess.UserID, "value", raw)
			return messages(linemsg.DateTimePrompt()), nil
		}
		return h.saveDateTime(sess, t)
	}

	return messages(linemsg.DateTimePrompt()), nil
}

func (h *DateTimeHandler) saveDateTime(sess *models.Session, t time.Time) ([]messaging_api.MessageInterface, error) {
	state := sess.State
	state.DateTime = &t
	if _, err := h.sessions.Save(sess.UserID, models.StepLocation, state); err != nil {
		return nil, err
	}
	return messages(
		linemsg.Text(fmt.Sprintf("📅 %s を選択しました。", t.In(jst).Format("2006年1月2日 15:04"))),
		linemsg.LocationPrompt(),
	), nil
}
