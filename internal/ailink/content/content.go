package content

import "strings"

// ContentType represents supported content types using IANA media types.
type ContentType string

const (
	ContentTypeText ContentType = "text/plain"
	ContentTypeJSON ContentType = "application/json"
	// ContentTypeImageRef marks a block that references a remote image by URL.
	ContentTypeImageRef ContentType = "image/x-url"
)

// ContentBlock represents a single piece of content.
type ContentBlock struct {
	Type     ContentType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Text builds a single text block.
func Text(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// ImageRef builds an image reference block.
func ImageRef(url string) ContentBlock {
	return ContentBlock{Type: ContentTypeImageRef, ImageURL: url}
}

// System returns a system message with plain text content.
func System(text string) Message {
	return Message{Role: "system", Content: []ContentBlock{Text(text)}}
}

// User returns a user message. A non-empty imageURL is appended as a second part.
func User(text, imageURL string) Message {
	blocks := []ContentBlock{Text(text)}
	if strings.TrimSpace(imageURL) != "" {
		blocks = append(blocks, ImageRef(strings.TrimSpace(imageURL)))
	}
	return Message{Role: "user", Content: blocks}
}

// JoinText concatenates the text blocks of a response.
func JoinText(blocks []ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == ContentTypeText || block.Type == ContentTypeJSON {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
