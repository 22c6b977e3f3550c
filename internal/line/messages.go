package line

import "encoding/json"

// Message is one outbound message-content variant in the LINE Messaging API
// wire format. Exactly one variant's fields are populated per message; the
// constructors below are the only intended way to build one.
type Message struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image, video
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`

	// flex
	AltText  string          `json:"altText,omitempty"`
	Contents json.RawMessage `json:"contents,omitempty"`
}

// NewTextMessage builds a plain text message.
func NewTextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

// NewImageMessage builds an image message from an original/preview URL pair.
func NewImageMessage(originalURL, previewURL string) Message {
	return Message{Type: "image", OriginalContentURL: originalURL, PreviewImageURL: previewURL}
}

// NewVideoMessage builds a video message from an original/preview URL pair.
func NewVideoMessage(originalURL, previewURL string) Message {
	return Message{Type: "video", OriginalContentURL: originalURL, PreviewImageURL: previewURL}
}

// NewFlexMessage builds a flex message from a free-form layout document and
// its accessibility text.
func NewFlexMessage(altText string, contents json.RawMessage) Message {
	return Message{Type: "flex", AltText: altText, Contents: contents}
}

// Profile is the LINE profile of one user.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}
