package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

// submissionFailedReply is sent when persisting a finished report fails.
const submissionFailedReply = "通報の送信中にエラーが発生しました。もう一度お試しください。"

// webhookHandler verifies and processes one LINE callback. Events are
// handled before responding so replies stay within the reply-token
// window; per-event failures are logged, never surfaced to LINE.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	cb, err := s.bot.ParseWebhook(r)
	if err != nil {
		// Bad signature or malformed payload; either way not ours.
		slog.Warn("Server.webhookHandler: webhook rejected", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	slog.Debug("Server.webhookHandler: callback received", "events", len(cb.Events))

	for _, ev := range cb.Events {
		s.handleWebhookEvent(r.Context(), ev)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWebhookEvent(ctx context.Context, ev webhook.EventInterface) {
	userID, replyToken, event, ok := convertEvent(ev)
	if !ok {
		slog.Debug("Server.handleWebhookEvent: event skipped")
		return
	}

	msgs, err := s.dispatcher.HandleEvent(ctx, userID, event)
	if err != nil {
		slog.Error("Server.handleWebhookEvent: dispatch failed", "error", err, "userID", userID)
		msgs = []messaging_api.MessageInterface{linemsg.Text(submissionFailedReply)}
	}
	if len(msgs) == 0 {
		return
	}
	if err := s.bot.Reply(ctx, replyToken, msgs); err != nil {
		slog.Error("Server.handleWebhookEvent: reply failed", "error", err, "userID", userID)
	}
}

// convertEvent maps a webhook event onto the flow event model. ok is
// false for event types the conversation does not consume and for
// redelivered events.
func convertEvent(ev webhook.EventInterface) (userID, replyToken string, event models.Event, ok bool) {
	switch e := ev.(type) {
	case webhook.MessageEvent:
		if isRedelivery(e.DeliveryContext) {
			return "", "", models.Event{}, false
		}
		userID = sourceUserID(e.Source)
		if userID == "" || e.ReplyToken == "" {
			return "", "", models.Event{}, false
		}
		switch m := e.Message.(type) {
		case webhook.TextMessageContent:
			return userID, e.ReplyToken, models.Event{Type: models.EventText, Text: m.Text}, true
		case webhook.ImageMessageContent:
			return userID, e.ReplyToken, models.Event{Type: models.EventImage, ImageID: m.Id}, true
		case webhook.LocationMessageContent:
			return userID, e.ReplyToken, models.Event{
				Type:      models.EventLocation,
				Latitude:  m.Latitude,
				Longitude: m.Longitude,
				Address:   m.Address,
			}, true
		}
		return "", "", models.Event{}, false

	case webhook.PostbackEvent:
		if isRedelivery(e.DeliveryContext) || e.Postback == nil {
			return "", "", models.Event{}, false
		}
		userID = sourceUserID(e.Source)
		if userID == "" || e.ReplyToken == "" {
			return "", "", models.Event{}, false
		}
		return userID, e.ReplyToken, models.Event{
			Type:           models.EventPostback,
			PostbackData:   e.Postback.Data,
			PostbackParams: e.Postback.Params,
		}, true

	case webhook.FollowEvent:
		// A new friend gets the conversation opener right away.
		userID = sourceUserID(e.Source)
		if userID == "" || e.ReplyToken == "" {
			return "", "", models.Event{}, false
		}
		return userID, e.ReplyToken, models.Event{Type: models.EventText}, true
	}

	return "", "", models.Event{}, false
}

func sourceUserID(src webhook.SourceInterface) string {
	if u, ok := src.(webhook.UserSource); ok {
		return u.UserId
	}
	return ""
}

func isRedelivery(dc *webhook.DeliveryContext) bool {
	return dc != nil && dc.IsRedelivery
}
