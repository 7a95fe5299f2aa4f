package core

// Part represents a polymorphic segment of message content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ImagePart is an image segment in embedded-data form. Remote references are
// resolved before a part is built (see package media), so Data always holds
// the base64 encoded bytes.
type ImagePart struct {
	Data        string `json:"data"`      // Base64 encoded image bytes
	MimeType    string `json:"mime_type"` // e.g. image/png
	Description string `json:"description,omitempty"`
}

// isPart implements the Part interface for ImagePart.
func (ImagePart) isPart() {}

// DataURL renders the part as an RFC 2397 data URL.
func (p ImagePart) DataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Data
}

// ImageSource identifies how an ImageInput carries its bytes.
type ImageSource string

const (
	// ImageSourceData marks an input whose Data is a data URL or raw base64.
	ImageSourceData ImageSource = "data"
	// ImageSourceURL marks an input whose Data is a remote http(s) URL.
	ImageSourceURL ImageSource = "url"
)

// ImageInput is an image attachment as supplied by the caller.
type ImageInput struct {
	Source      ImageSource `json:"source"`
	Data        string      `json:"data"`
	MimeType    string      `json:"mime_type,omitempty"`
	Description string      `json:"description,omitempty"`
}
