package models

// EventType identifies the kind of inbound user event.
type EventType string

const (
	EventText     EventType = "text"
	EventImage    EventType = "image"
	EventLocation EventType = "location"
	EventPostback EventType = "postback"
)

// Event is a platform-neutral inbound user event. The transport layer
// converts provider webhook payloads into this shape before dispatch.
type Event struct {
	Type EventType

	// Text message content.
	Text string

	// Image message content id (provider-side; resolved to a URL by the
	// image uploader).
	ImageID string

	// Location message content.
	Latitude  float64
	Longitude float64
	Address   string

	// Postback content. Params carries picker results keyed by the
	// provider (e.g. "datetime" for the datetime picker).
	PostbackData   string
	PostbackParams map[string]string
}
