// Package linemsg builds the LINE message bodies for every conversation
// step.
//
// The flow layer decides which builders to call and in what order; this
// package owns the Japanese copy, quick-reply chrome, and flex layouts.
package linemsg

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
	"github.com/tsukinowa-lab/FaunaLine/internal/postback"
)

// MaxQuickReplyLabelRunes is the LINE limit for quick-reply labels.
const MaxQuickReplyLabelRunes = 20

// MaxLandmarkItems leaves room for the 該当なし button within LINE's
// 13-item quick-reply ceiling.
const MaxLandmarkItems = 12

// Emoji per action category, display only.
var actionCategoryEmojis = map[string]string{
	"movement": "🚶",
	"stay":     "📍",
	"approach": "👀",
	"feeding":  "🍽️",
	"threat":   "⚠️",
	"escape":   "💨",
	"damage":   "🌾",
	"other":    "❓",
}

// Text builds a plain text message.
func Text(text string) messaging_api.TextMessage {
	return messaging_api.TextMessage{Text: text}
}

func textWithQuickReply(text string, items []messaging_api.QuickReplyItem) messaging_api.TextMessage {
	return messaging_api.TextMessage{
		Text:       text,
		QuickReply: &messaging_api.QuickReply{Items: items},
	}
}

// truncateLabel enforces the quick-reply label limit in runes, not bytes.
func truncateLabel(label string) string {
	runes := []rune(label)
	if len(runes) > MaxQuickReplyLabelRunes {
		return string(runes[:MaxQuickReplyLabelRunes])
	}
	return label
}

func postbackItem(label string, data postback.Data) messaging_api.QuickReplyItem {
	short := truncateLabel(label)
	return messaging_api.QuickReplyItem{
		Type: "action",
		Action: messaging_api.PostbackAction{
			Label:       short,
			Data:        postback.Encode(data),
			DisplayText: label,
		},
	}
}

func cameraItems() []messaging_api.QuickReplyItem {
	return []messaging_api.QuickReplyItem{
		{Type: "action", Action: messaging_api.CameraAction{Label: "カメラで撮影"}},
		{Type: "action", Action: messaging_api.CameraRollAction{Label: "アルバムから選択"}},
	}
}

// ResetMessage acknowledges a conversation reset.
func ResetMessage() messaging_api.TextMessage {
	return Text("通報を中断しました。\n再度通報する場合はメッセージを送信してください。")
}

// AnimalTypePrompt builds the animal picker from the master list.
func AnimalTypePrompt() messaging_api.TextMessage {
	items := make([]messaging_api.QuickReplyItem, 0, len(models.AnimalTypes))
	for _, at := range models.AnimalTypes {
		label := fmt.Sprintf("%s %s", at.Emoji, at.Label)
		items = append(items, postbackItem(label, postback.Data{
			Action: postback.ActionSelectAnimal,
			Value:  at.ID,
		}))
	}
	return textWithQuickReply("どの動物を目撃しましたか？", items)
}

// PhotoPrompt asks for the first photo, offering camera, album, and skip.
func PhotoPrompt() messaging_api.TextMessage {
	items := append(cameraItems(),
		postbackItem("📷 写真を持ってない", postback.Data{Action: postback.ActionSkipPhoto}))
	return textWithQuickReply(
		"写真を送信してください。\n※写真解析AIが動物や痕跡を識別します。解析には少し時間がかかる場合があります。",
		items)
}

// AddPhotoPrompt asks whether to attach a further photo.
func AddPhotoPrompt() messaging_api.TextMessage {
	items := append(cameraItems(),
		postbackItem("⏭️ 次へ進む", postback.Data{Action: postback.ActionSkipPhoto}))
	return textWithQuickReply("写真を追加しますか？", items)
}

// ImageAnalysisDescriptionPrompt shows the AI description with yes/no.
func ImageAnalysisDescriptionPrompt(description string) messaging_api.TextMessage {
	items := []messaging_api.QuickReplyItem{
		postbackItem("✅ はい", postback.Data{Action: postback.ActionConfirmDesc}),
		postbackItem("❌ いいえ", postback.Data{Action: postback.ActionRejectDesc}),
	}
	return textWithQuickReply(
		fmt.Sprintf("写真を解析しました。この説明で合っていますか？\n\n「%s」", description),
		items)
}

// ImageRejectedMessage explains a screening rejection and re-offers upload.
func ImageRejectedMessage(reason string) messaging_api.TextMessage {
	items := append(cameraItems(),
		postbackItem("📷 写真を持ってない", postback.Data{Action: postback.ActionSkipPhoto}))
	return textWithQuickReply(
		fmt.Sprintf("画像を確認しましたが、動物や痕跡を識別できませんでした。\n理由: %s\n\n別の写真を送信するか、「写真を持ってない」を選んでください。", reason),
		items)
}

// ImageAddOrContinuePrompt asks whether more photos follow.
func ImageAddOrContinuePrompt() messaging_api.TextMessage {
	items := []messaging_api.QuickReplyItem{
		postbackItem("📷 写真を追加", postback.Data{Action: postback.ActionAddPhoto}),
		postbackItem("⏭️ 次へ進む", postback.Data{Action: postback.ActionSkipPhoto}),
	}
	return textWithQuickReply("他にも写真がありますか？", items)
}

// ActionCategoryPrompt builds the behavior category picker.
func ActionCategoryPrompt() messaging_api.TextMessage {
	items := make([]messaging_api.QuickReplyItem, 0, len(models.ActionCategories))
	for _, cat := range models.ActionCategories {
		label := fmt.Sprintf("%s %s", actionCategoryEmojis[cat.ID], cat.Label)
		items = append(items, postbackItem(label, postback.Data{
			Action: postback.ActionSelectAction,
			Value:  cat.ID,
		}))
	}
	return textWithQuickReply(
		"動物の行動について詳しく教えてください。\nどのような行動でしたか？",
		items)
}

// ActionCategoryMessages is the guidance + picker pair shown on entry to
// the behavior deep-dive.
func ActionCategoryMessages() []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		Text("ありがとうございます。\n※聞き取りAIがこの後の質問を作成します。質問生成に少し時間がかかる場合があります。"),
		ActionCategoryPrompt(),
	}
}

// QuestionMessage renders one deep-dive question card as quick replies.
func QuestionMessage(q models.QuestionCard) messaging_api.TextMessage {
	items := make([]messaging_api.QuickReplyItem, 0, len(q.Choices))
	for _, choice := range q.Choices {
		items = append(items, postbackItem(choice.Label, postback.Data{
			Action: postback.ActionAnswerQuestion,
			QID:    q.QuestionID,
			CID:    choice.ID,
		}))
	}
	return textWithQuickReply(q.QuestionText, items)
}

// ActionDetailConfirmPrompt shows the generated detail with confirm/restart.
func ActionDetailConfirmPrompt(detail string) messaging_api.TextMessage {
	items := []messaging_api.QuickReplyItem{
		postbackItem("✅ 確定", postback.Data{Action: postback.ActionConfirmDetail}),
		postbackItem("🔄 やり直し", postback.Data{Action: postback.ActionRestartDetail}),
	}
	return textWithQuickReply(
		fmt.Sprintf("行動詳細:\n\n「%s」\n\nこの内容でよろしいですか？", detail),
		items)
}

// DateTimePrompt offers the datetime picker and a "just now" shortcut.
func DateTimePrompt() messaging_api.TextMessage {
	items := []messaging_api.QuickReplyItem{
		{
			Type: "action",
			Action: messaging_api.DatetimePickerAction{
				Label: "📅 日時を選択",
				Data:  postback.Encode(postback.Data{Action: postback.ActionSelectDateTime}),
				Mode:  messaging_api.DatetimePickerActionMODE_DATETIME,
			},
		},
		postbackItem("🕐 たった今", postback.Data{Action: postback.ActionDateTimeNow}),
	}
	return textWithQuickReply("目撃した日時を教えてください。", items)
}

// LocationPrompt requests the sighting position.
func LocationPrompt() messaging_api.TextMessage {
	items := []messaging_api.QuickReplyItem{
		{Type: "action", Action: messaging_api.LocationAction{Label: "位置情報を送信"}},
	}
	return textWithQuickReply(
		"被害が発生した場所を教えてください。\n\n位置情報を送信してください。",
		items)
}

// NearbyLandmarksPrompt lists facilities near the reported position.
func NearbyLandmarksPrompt(landmarks []models.Landmark) messaging_api.TextMessage {
	if len(landmarks) > MaxLandmarkItems {
		landmarks = landmarks[:MaxLandmarkItems]
	}
	items := make([]messaging_api.QuickReplyItem, 0, len(landmarks)+1)
	listing := ""
	for _, lm := range landmarks {
		items = append(items, postbackItem(
			fmt.Sprintf("%s (%dm)", lm.Name, lm.DistanceMeters),
			postback.Data{Action: postback.ActionSelectLandmark, ID: lm.ID},
		))
		category := lm.Category
		if category == "" {
			category = "施設"
		}
		listing += fmt.Sprintf("・%s（%s、%dm）\n", lm.Name, category, lm.DistanceMeters)
	}
	items = append(items, postbackItem("⏭️ 該当なし", postback.Data{Action: postback.ActionSkipLandmark}))
	return textWithQuickReply(
		fmt.Sprintf("周辺の施設が見つかりました。目撃場所に近い施設があれば選択してください。\n\n%s", listing),
		items)
}

// DraftGeneratingMessage is the placeholder shown before the draft card.
func DraftGeneratingMessage() messaging_api.TextMessage {
	return Text("📝 通報内容のサマリを作成中です。")
}

// ReportDraftMessage renders the draft as a flex bubble with a single
// confirm quick reply.
func ReportDraftMessage(draft models.ReportDraft) messaging_api.FlexMessage {
	body := []messaging_api.FlexComponentInterface{
		draftRow("🕐 いつ", draft.When),
		draftRow("📍 どこで", draft.Where),
		draftRow("🐾 何が", draft.What),
		draftRow("📝 状況", draft.Situation),
		messaging_api.FlexText{
			Text:   "※内容に誤りがあっても通報後に修正可能です",
			Size:   "xs",
			Color:  "#999999",
			Wrap:   true,
			Margin: "lg",
		},
	}
	return messaging_api.FlexMessage{
		AltText: "通報内容の確認",
		Contents: messaging_api.FlexBubble{
			Header: &messaging_api.FlexBox{
				Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents: []messaging_api.FlexComponentInterface{
					messaging_api.FlexText{
						Text:   "📋 通報内容の確認",
						Weight: messaging_api.FlexTextWEIGHT_BOLD,
						Size:   "lg",
					},
				},
			},
			Body: &messaging_api.FlexBox{
				Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
				Spacing:  "md",
				Contents: body,
			},
		},
		QuickReply: &messaging_api.QuickReply{
			Items: []messaging_api.QuickReplyItem{
				postbackItem("✅ 送信", postback.Data{Action: postback.ActionConfirmReport}),
			},
		},
	}
}

func draftRow(label, value string) messaging_api.FlexBox {
	return messaging_api.FlexBox{
		Layout:  messaging_api.FlexBoxLAYOUT_VERTICAL,
		Spacing: "sm",
		Contents: []messaging_api.FlexComponentInterface{
			messaging_api.FlexText{Text: label, Size: "sm", Color: "#666666"},
			messaging_api.FlexText{Text: value, Size: "md", Wrap: true},
		},
	}
}

// PhoneNumberPrompt asks for the contact number. The first button opens
// the platform keyboard instead of sending a duplicate text prompt.
func PhoneNumberPrompt() messaging_api.TextMessage {
	items := []messaging_api.QuickReplyItem{
		{
			Type: "action",
			Action: messaging_api.PostbackAction{
				Label:       "電話番号を送る",
				Data:        postback.Encode(postback.Data{Action: postback.ActionRequestPhoneNumber}),
				DisplayText: "電話番号を送る",
				InputOption: messaging_api.PostbackActionINPUT_OPTION_OPEN_KEYBOARD,
			},
		},
		postbackItem("電話番号を送らない", postback.Data{Action: postback.ActionSkipPhoneNumber}),
	}
	return textWithQuickReply("電話番号を入力してください。", items)
}

// CompletionMessage closes the conversation. Edit and map buttons appear
// only when the corresponding URL is configured.
func CompletionMessage(editURL, mapURL string) messaging_api.FlexMessage {
	body := []messaging_api.FlexComponentInterface{
		messaging_api.FlexText{Text: "通報が完了しました", Size: "md", Wrap: true},
		messaging_api.FlexText{
			Text:   "ご協力ありがとうございます。",
			Size:   "sm",
			Color:  "#666666",
			Wrap:   true,
			Margin: "md",
		},
	}
	if editURL != "" {
		body = append(body, messaging_api.FlexButton{
			Action: messaging_api.UriAction{Label: "📝 通報内容の確認・編集", Uri: editURL},
			Style:  messaging_api.FlexButtonSTYLE_PRIMARY,
			Height: messaging_api.FlexButtonHEIGHT_SM,
			Margin: "lg",
		})
	}
	if mapURL != "" {
		body = append(body, messaging_api.FlexButton{
			Action: messaging_api.UriAction{Label: "🗺️ 地図で通報場所を確認", Uri: mapURL},
			Style:  messaging_api.FlexButtonSTYLE_SECONDARY,
			Height: messaging_api.FlexButtonHEIGHT_SM,
			Margin: "sm",
		})
	}
	return messaging_api.FlexMessage{
		AltText: "✅ 通報が完了しました",
		Contents: messaging_api.FlexBubble{
			Header: &messaging_api.FlexBox{
				Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents: []messaging_api.FlexComponentInterface{
					messaging_api.FlexText{
						Text:   "✅ 通報完了",
						Weight: messaging_api.FlexTextWEIGHT_BOLD,
						Size:   "lg",
					},
				},
			},
			Body: &messaging_api.FlexBox{
				Layout:   messaging_api.FlexBoxLAYOUT_VERTICAL,
				Spacing:  "md",
				Contents: body,
			},
		},
		QuickReply: &messaging_api.QuickReply{
			Items: []messaging_api.QuickReplyItem{
				postbackItem("🔄 新しい通報", postback.Data{Action: postback.ActionStartOver}),
			},
		},
	}
}
