package utils

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

var (
	bodyPolicy = bluemonday.UGCPolicy()
	textPolicy = bluemonday.StrictPolicy()
)

// SanitizeBody keeps user-generated markup that is safe to render in a post.
func SanitizeBody(input string) string {
	return bodyPolicy.Sanitize(input)
}

// SanitizeText strips all markup and returns plain text. Comments and circle
// names go through it; entities are decoded so "R&D" stays "R&D".
func SanitizeText(input string) string {
	return html.UnescapeString(textPolicy.Sanitize(input))
}

// SanitizeDetail cleans every string in a post's structured payload,
// descending into nested objects and arrays.
func SanitizeDetail(detail map[string]interface{}) map[string]interface{} {
	if detail == nil {
		return nil
	}
	out := make(map[string]interface{}, len(detail))
	for k, v := range detail {
		out[SanitizeText(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return SanitizeBody(t)
	case map[string]interface{}:
		return SanitizeDetail(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = sanitizeValue(e)
		}
		return out
	default:
		return v
	}
}
