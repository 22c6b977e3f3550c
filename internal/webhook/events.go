package webhook

// Event type tags delivered by the platform. Unrecognized tags are accepted
// and ignored for forward compatibility.
const (
	EventTypeMessage  = "message"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
)

// Message content type tags.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeLocation = "location"
	MessageTypeSticker  = "sticker"
)

// Envelope is the top-level webhook payload: a destination identifier and an
// ordered sequence of raw events.
type Envelope struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one inbound platform event. Which fields are populated depends on
// Type; handlers switch on Type and treat unknown values as a catch-all.
type Event struct {
	Type       string       `json:"type"`
	ReplyToken string       `json:"replyToken,omitempty"`
	Source     EventSource  `json:"source"`
	Message    EventMessage `json:"message,omitempty"`
	Timestamp  int64        `json:"timestamp"`
}

// EventSource identifies the sender of an event.
type EventSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// EventMessage is the message-content variant attached to a message event.
// Which fields are meaningful depends on Type.
type EventMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`

	// text
	Text string `json:"text,omitempty"`

	// location
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	// sticker
	PackageID string `json:"packageId,omitempty"`
	StickerID string `json:"stickerId,omitempty"`
}
