package sniffer

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniff(t *testing.T) {
	cases := map[string]struct {
		head []byte
		want MediaType
	}{
		"jpeg": {[]byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10}, TypeJPEG},
		"png":  {[]byte("\x89PNG\r\n\x1a\n\x00\x00"), TypePNG},
		"gif":  {[]byte("GIF89a..."), TypeGIF},
		"webp": {[]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), TypeWEBP},
		"mp4":  {[]byte("\x00\x00\x00\x18ftypmp42\x00\x00"), TypeMP4},
		"svg":  {[]byte("\xef\xbb\xbf  <svg xmlns=\"http://www.w3.org/2000/svg\"/>"), TypeSVG},
		"xml":  {[]byte(`<?xml version="1.0"?><svg></svg>`), TypeSVG},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := Sniff(tc.head)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Type)
			assert.NotEmpty(t, got.MIME)
		})
	}
}

func TestSniffRejectsUnknown(t *testing.T) {
	for _, head := range [][]byte{nil, []byte("%PDF-1.7"), []byte(`<?xml version="1.0"?><html/>`), []byte("\x00\x00\x00\x18ftypavif")} {
		_, err := Sniff(head)
		assert.ErrorIs(t, err, ErrUnknownType, string(head))
	}
}

func TestDeclaredType(t *testing.T) {
	h := http.Header{}
	assert.Empty(t, DeclaredType(h))

	h.Set("Content-Type", "image/PNG; charset=binary")
	assert.Equal(t, "image/png", DeclaredType(h))

	h.Set("Content-Type", ";;")
	assert.Empty(t, DeclaredType(h))
}
