// Package assistant answers messages addressed to the assistant account,
// routing each model reply to a text answer or an image generation.
package assistant

import "strings"

// ImageMarker opens a model reply that asks for an image. What follows it
// is the image prompt.
const ImageMarker = "[IMAGE_GEN]"

// Reply is either a TextReply or an ImageReply.
type Reply interface {
	isReply()
}

type TextReply struct {
	Body string
}

type ImageReply struct {
	Prompt string
}

func (TextReply) isReply()  {}
func (ImageReply) isReply() {}

// ParseReply routes a model reply. Only a marker at the very start of the
// trimmed text counts; one found anywhere else is plain text.
func ParseReply(text string) Reply {
	trimmed := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(trimmed, ImageMarker); ok {
		return ImageReply{Prompt: strings.TrimSpace(rest)}
	}
	return TextReply{Body: text}
}
