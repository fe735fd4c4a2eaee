package svg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeStripsActiveContent(t *testing.T) {
	in := []byte(`<svg xmlns="http://www.w3.org/2000/svg" onload="steal()">` +
		`<script type="text/javascript">alert(1)</script>` +
		`<foreignObject width="10"><div>hi</div></foreignObject>` +
		`<a xlink:href="javascript:alert(2)"><circle r="4" onclick='x()'/></a>` +
		`<a href="https://example.com"><rect width="2"/></a>` +
		`</svg>`)

	out, err := Sanitize(in)
	require.NoError(t, err)

	s := string(out)
	for _, gone := range []string{"script", "alert", "foreignObject", "onload", "onclick", "javascript:"} {
		assert.NotContains(t, s, gone)
	}
	assert.Contains(t, s, `<circle r="4"/>`)
	assert.Contains(t, s, `href="https://example.com"`)
}

func TestSanitizeLeavesCleanDocumentAlone(t *testing.T) {
	in := []byte(`<svg viewBox="0 0 10 10"><path d="M0 0L10 10"/></svg>`)
	out, err := Sanitize(in)
	require.NoError(t, err)
	assert.Equal(t, string(in), string(out))
}

func TestSanitizeRejectsNonSVG(t *testing.T) {
	_, err := Sanitize([]byte("<html><body/></html>"))
	assert.ErrorIs(t, err, ErrNotSVG)
}
