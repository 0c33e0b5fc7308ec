package model

import (
	"strings"
)

const (
	SenderMe        = "Me"
	CaptionAudio    = "Audio Message"
	CaptionDocument = "Document"
)

// MediaTypeFromMime maps a MIME type onto a MediaType; anything unknown is a document.
func MediaTypeFromMime(mime string) MediaType {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image"):
		return MediaImage
	case strings.HasPrefix(mime, "audio"):
		return MediaAudio
	case strings.HasPrefix(mime, "video"):
		return MediaVideo
	default:
		return MediaDocument
	}
}

// MediaTypeFromKind maps a provider message kind ("chat", "image", "ptt", ...)
// onto a MediaType. Plain text kinds yield "".
func MediaTypeFromKind(kind string) MediaType {
	switch strings.ToLower(kind) {
	case "image", "sticker":
		return MediaImage
	case "audio", "ptt":
		return MediaAudio
	case "video", "gif":
		return MediaVideo
	case "document":
		return MediaDocument
	default:
		return ""
	}
}

// ExtFromMime returns the file extension for a MIME type: "audio/ogg; codecs=opus" -> "ogg".
func ExtFromMime(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return "bin"
	}
	sub, _, _ = strings.Cut(sub, ";")
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return "bin"
	}
	return sub
}

// UserPart is the part of a provider id before "@": "15551234@c.us" -> "15551234".
func UserPart(id string) string {
	user, _, _ := strings.Cut(id, "@")
	return user
}

// SenderLabel formats a group participant for display:
// contact name, else "+<number> ~<pushname>", else "+<number>".
func SenderLabel(participantID, contactName, pushname string) string {
	if contactName != "" {
		return contactName
	}
	number := UserPart(participantID)
	if pushname != "" {
		return "+" + number + " ~" + pushname
	}
	return "+" + number
}

// Caption fills in the caption for media without text:
// audio -> "Audio Message", document -> file name or "Document".
func Caption(mediaType MediaType, text, filename string) string {
	if text != "" {
		return text
	}
	switch mediaType {
	case MediaAudio:
		return CaptionAudio
	case MediaDocument:
		if filename != "" {
			return filename
		}
		return CaptionDocument
	}
	return ""
}

// Preview is the chat list line for a message: caption, else "[type]" for media, else the body.
func Preview(caption string, mediaType MediaType, body string) string {
	if caption != "" {
		return caption
	}
	if mediaType != "" {
		return "[" + string(mediaType) + "]"
	}
	return body
}
