package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/genai"
	"github.com/tsukinowa-lab/FaunaLine/internal/linemsg"
	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
	"github.com/tsukinowa-lab/FaunaLine/internal/store"
)

// MaxImageRejections is the screening bypass threshold: after this many
// rejections every further upload is accepted unconditionally.
const MaxImageRejections = 2

// PhotoHandler owns the photo and image-description steps, including
// the screening pipeline.
type PhotoHandler struct {
	sessions store.SessionStore
	ai       genai.ClientInterface
	uploader ImageUploader
}

func NewPhotoHandler(sessions store.SessionStore, ai genai.ClientInterface, uploader ImageUploader) *PhotoHandler {
	return &PhotoHandler{sessions: sessions, ai: ai, uploader: uploader}
}

func (h *PhotoHandler) Handle(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if sess.Step == models.StepImageDescription {
		return h.handleImageDescription(ctx, sess, event)
	}
	return h.handlePhoto(ctx, sess, event)
}

func (h *PhotoHandler) handlePhoto(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	if event.Type == models.EventPostback {
		payload := postback.Decode(event.PostbackData)
		switch payload.Action {
		case postback.ActionSkipPhoto:
			if _, err := h.sessions.Save(sess.UserID, models.StepDateTime, sess.State); err != nil {
				return nil, err
			}
			return messages(linemsg.DateTimePrompt()), nil
		case postback.ActionAddPhoto:
			return messages(linemsg.AddPhotoPrompt()), nil
		}
	}

	if event.Type == models.EventImage && event.ImageID != "" {
		return h.processImageUpload(ctx, sess, event.ImageID)
	}

	return messages(linemsg.PhotoPrompt()), nil
}

// processImageUpload runs the screening pipeline on a new image.
func (h *PhotoHandler) processImageUpload(ctx context.Context, sess *models.Session, imageID string) ([]messaging_api.MessageInterface, error) {
	imageURL, err := h.uploader.Upload(ctx, imageID)
	if err != nil {
		slog.Error("PhotoHandler.processImageUpload: upload failed", "error", err, "userID", sess.UserID)
		return messages(
			linemsg.Text("画像の処理中にエラーが発生しました。もう一度お試しください。"),
			linemsg.PhotoPrompt(),
		), nil
	}

	analysis, err := h.ai.AnalyzeImage(ctx, imageURL, sess.State.AnimalType)
	if err != nil {
		// The image is kept even when analysis fails: the audit trail
		// covers every upload.
		state := sess.State
		state.Images = append(state.Images, models.ReportImage{URL: imageURL})
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, state); err != nil {
			return nil, err
		}
		return messages(
			linemsg.Text("画像の解析に失敗しました。別の写真を送信するか、「写真を持ってない」を選んでください。"),
			linemsg.PhotoPrompt(),
		), nil
	}

	state := sess.State
	state.Images = append(state.Images, models.ReportImage{URL: imageURL, Description: analysis.Description})

	skipScreening := state.ImageRejectionCount >= MaxImageRejections

	if !skipScreening && !analysis.IsImageClear {
		state.ImageRejectionCount++
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, state); err != nil {
			return nil, err
		}
		reason := "写真が不鮮明で被写体を確認できませんでした。もう少し明るい場所や近くから撮影してください"
		if analysis.Description != "" {
			reason = fmt.Sprintf("写真が不鮮明で被写体を確認できませんでした。\n\n【AI解析】%s\n\nもう少し明るい場所や近くから撮影してください", analysis.Description)
		}
		return messages(linemsg.ImageRejectedMessage(reason)), nil
	}

	if !skipScreening && !analysis.ContainsAnimalOrTrace {
		state.ImageRejectionCount++
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, state); err != nil {
			return nil, err
		}
		reason := "動物や痕跡が確認できませんでした。動物や被害の様子が写った写真を送信してください"
		if analysis.Description != "" {
			reason = fmt.Sprintf("動物や痕跡が確認できませんでした。\n\n【AI解析】%s\n\n動物や被害の様子が写った写真を送信してください", analysis.Description)
		}
		return messages(linemsg.ImageRejectedMessage(reason)), nil
	}

	// Species mismatch: only when both sides are concrete types.
	selected := sess.State.AnimalType
	detected := analysis.DetectedAnimalType
	if !skipScreening && selected != "" && selected != "other" &&
		detected != "" && detected != "other" && detected != selected {
		state.ImageRejectionCount++
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, state); err != nil {
			return nil, err
		}
		reason := fmt.Sprintf("「%s」が写っているようですが、「%s」として通報されています",
			models.AnimalTypeLabel(detected), models.AnimalTypeLabel(selected))
		return messages(linemsg.ImageRejectedMessage(reason)), nil
	}

	// Accepted.
	state.ImageAnalysisDescription = analysis.Description
	if _, err := h.sessions.Save(sess.UserID, models.StepImageDescription, state); err != nil {
		return nil, err
	}
	slog.Debug("PhotoHandler.processImageUpload: image accepted", "userID", sess.UserID, "images", len(state.Images))

	if analysis.Description != "" {
		return messages(linemsg.ImageAnalysisDescriptionPrompt(analysis.Description)), nil
	}
	return messages(linemsg.ImageAddOrContinuePrompt()), nil
}

func (h *PhotoHandler) handleImageDescription(ctx context.Context, sess *models.Session, event models.Event) ([]messaging_api.MessageInterface, error) {
	// A further image re-enters the upload pipeline immediately.
	if event.Type == models.EventImage && event.ImageID != "" {
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, sess.State); err != nil {
			return nil, err
		}
		return h.processImageUpload(ctx, sess, event.ImageID)
	}

	// Free text corrects the AI description.
	if event.Type == models.EventText && event.Text != "" {
		state := sess.State
		state.Situation = fmt.Sprintf("%s（補足: %s）", state.ImageAnalysisDescription, event.Text)
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, state); err != nil {
			return nil, err
		}
		return messages(
			linemsg.Text("ありがとうございます。"),
			linemsg.ImageAddOrContinuePrompt(),
		), nil
	}

	if event.Type != models.EventPostback {
		if sess.State.ImageAnalysisDescription != "" {
			return messages(linemsg.ImageAnalysisDescriptionPrompt(sess.State.ImageAnalysisDescription)), nil
		}
		return messages(linemsg.ImageAddOrContinuePrompt()), nil
	}

	payload := postback.Decode(event.PostbackData)
	switch payload.Action {
	case postback.ActionConfirmDesc:
		state := sess.State
		state.Situation = state.ImageAnalysisDescription
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, state); err != nil {
			return nil, err
		}
		return messages(linemsg.ImageAddOrContinuePrompt()), nil

	case postback.ActionRejectDesc:
		return messages(linemsg.Text("どのように違うか教えてください。")), nil

	case postback.ActionSkipPhoto:
		if _, err := h.sessions.Save(sess.UserID, models.StepDateTime, sess.State); err != nil {
			return nil, err
		}
		return messages(linemsg.DateTimePrompt()), nil

	case postback.ActionAddPhoto:
		if _, err := h.sessions.Save(sess.UserID, models.StepPhoto, sess.State); err != nil {
			return nil, err
		}
		return messages(linemsg.AddPhotoPrompt()), nil
	}

	return messages(linemsg.ImageAddOrContinuePrompt()), nil
}
