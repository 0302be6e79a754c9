// Package postback implements the wire codec for LINE postback payloads.
//
// Payloads are URL query strings (action=select_animal&value=monkey). The
// LINE platform caps postback data at 300 bytes, so builders must check
// EncodeChecked before attaching a payload to a button.
package postback

import (
	"fmt"
	"net/url"
)

// MaxPayloadBytes is the LINE platform limit for postback data.
const MaxPayloadBytes = 300

// Action constants used across the conversation flow.
const (
	ActionSelectAnimal       = "select_animal"
	ActionOpenCamera         = "open_camera"
	ActionSkipPhoto          = "skip_photo"
	ActionAddPhoto           = "add_photo"
	ActionConfirmDesc        = "confirm_desc"
	ActionRejectDesc         = "reject_desc"
	ActionSelectAction       = "select_action"
	ActionAnswerQuestion     = "answer_question"
	ActionConfirmDetail      = "confirm_detail"
	ActionRestartDetail      = "restart_detail"
	ActionDateTimeNow        = "datetime_now"
	ActionSelectDateTime     = "select_datetime"
	ActionSelectLandmark     = "select_landmark"
	ActionSkipLandmark       = "skip_landmark"
	ActionConfirmReport      = "confirm_report"
	ActionRequestPhoneNumber = "request_phone_number"
	ActionSkipPhoneNumber    = "skip_phone_number"
	ActionStartOver          = "start_over"
)

// Data is the decoded postback payload. Zero-valued fields were absent.
type Data struct {
	Action string // action discriminator
	Value  string // primary argument (animal id, category id, ...)
	QID    string // question id for answer_question
	CID    string // choice id for answer_question
	ID     string // generic entity id (landmark)
}

// Encode serializes the payload as a URL query string. Keys are emitted
// in deterministic order with action first.
func Encode(d Data) string {
	v := url.Values{}
	v.Set("action", d.Action)
	if d.Value != "" {
		v.Set("value", d.Value)
	}
	if d.QID != "" {
		v.Set("qid", d.QID)
	}
	if d.CID != "" {
		v.Set("cid", d.CID)
	}
	if d.ID != "" {
		v.Set("id", d.ID)
	}
	return v.Encode()
}

// EncodeChecked is Encode plus the platform size limit. Builders use it
// for payloads carrying user- or AI-derived text.
func EncodeChecked(d Data) (string, error) {
	s := Encode(d)
	if len(s) > MaxPayloadBytes {
		return "", fmt.Errorf("postback payload is %d bytes, limit %d", len(s), MaxPayloadBytes)
	}
	return s, nil
}

// Decode parses a postback payload. It never fails: malformed input
// yields a zero Data so the handler's default branch takes over.
func Decode(s string) Data {
	v, err := url.ParseQuery(s)
	if err != nil {
		return Data{}
	}
	return Data{
		Action: v.Get("action"),
		Value:  v.Get("value"),
		QID:    v.Get("qid"),
		CID:    v.Get("cid"),
		ID:     v.Get("id"),
	}
}
