// Package sniffer identifies exercise media from its leading bytes.
package sniffer

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeSVG  MediaType = "svg"
	TypeMP4  MediaType = "mp4"
)

// HeadSize is how many leading bytes Sniff needs to decide.
const HeadSize = 512

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

type signature struct {
	result Result
	match  func(head []byte) bool
}

var signatures = []signature{
	{Result{TypeJPEG, "image/jpeg"}, prefix(0xff, 0xd8, 0xff)},
	{Result{TypePNG, "image/png"}, prefix(0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n')},
	{Result{TypeGIF, "image/gif"}, func(h []byte) bool {
		return bytes.HasPrefix(h, []byte("GIF87a")) || bytes.HasPrefix(h, []byte("GIF89a"))
	}},
	{Result{TypeWEBP, "image/webp"}, func(h []byte) bool {
		return len(h) >= 12 && bytes.Equal(h[:4], []byte("RIFF")) && bytes.Equal(h[8:12], []byte("WEBP"))
	}},
	{Result{TypeMP4, "video/mp4"}, func(h []byte) bool {
		return len(h) >= 12 && bytes.Equal(h[4:8], []byte("ftyp")) && !bytes.Contains(h[8:12], []byte("avi"))
	}},
	{Result{TypeSVG, "image/svg+xml"}, func(h []byte) bool {
		trimmed := bytes.TrimSpace(bytes.TrimPrefix(h, []byte("\xef\xbb\xbf")))
		lower := bytes.ToLower(trimmed)
		if bytes.HasPrefix(lower, []byte("<svg")) {
			return true
		}
		return bytes.HasPrefix(lower, []byte("<?xml")) && bytes.Contains(lower, []byte("<svg"))
	}},
}

func prefix(magic ...byte) func([]byte) bool {
	return func(h []byte) bool { return bytes.HasPrefix(h, magic) }
}

// Sniff matches head against the supported media signatures.
func Sniff(head []byte) (Result, error) {
	if len(head) > HeadSize {
		head = head[:HeadSize]
	}
	for _, sig := range signatures {
		if sig.match(head) {
			return sig.result, nil
		}
	}
	return Result{}, ErrUnknownType
}

// DeclaredType returns the bare media type of a Content-Type header, or "".
func DeclaredType(header http.Header) string {
	contentType := strings.TrimSpace(header.Get("Content-Type"))
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}
