// Package svg strips active content from uploaded SVG documents.
package svg

import (
	"bytes"
	"errors"
	"regexp"
)

var ErrNotSVG = errors.New("not an svg document")

var (
	scriptElement  = regexp.MustCompile(`(?is)<\s*script\b.*?(<\s*/\s*script\s*>|/>)`)
	foreignElement = regexp.MustCompile(`(?is)<\s*foreignObject\b.*?(<\s*/\s*foreignObject\s*>|/>)`)
	eventAttr      = regexp.MustCompile(`(?is)\s+on[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	scriptHref     = regexp.MustCompile(`(?is)\s+(xlink:)?href\s*=\s*("\s*javascript:[^"]*"|'\s*javascript:[^']*')`)
)

// Sanitize removes script and foreignObject elements, inline event handlers
// and javascript: links.
func Sanitize(input []byte) ([]byte, error) {
	if !bytes.Contains(bytes.ToLower(input), []byte("<svg")) {
		return nil, ErrNotSVG
	}

	clean := scriptElement.ReplaceAll(input, nil)
	clean = foreignElement.ReplaceAll(clean, nil)
	clean = eventAttr.ReplaceAll(clean, nil)
	clean = scriptHref.ReplaceAll(clean, nil)
	return clean, nil
}
