package docpkg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// placeholderRe matches {{key}} placeholders produced by the rewriter.
var placeholderRe = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Render binds scalar values into a rewritten document. Placeholders with no
// corresponding key are re-emitted unchanged so that missing bindings stay
// visible in the output instead of silently disappearing.
func Render(data []byte, values map[string]string) ([]byte, error) {
	doc, err := Open(data)
	if err != nil {
		return nil, err
	}
	changed := doc.Transform(func(_, content string) string {
		return placeholderRe.ReplaceAllStringFunc(content, func(span string) string {
			key := span[2 : len(span)-2]
			v, ok := values[key]
			if !ok {
				return span
			}
			return escapeXML(v)
		})
	})
	if !changed {
		return data, nil
	}
	return doc.Bytes()
}

// escapeXML escapes the characters that would corrupt surrounding markup.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// FanOut expands a value map that may contain array values into per-document
// scalar maps, in index order. N is the maximum array length; scalar values
// are broadcast to all N maps, and short arrays yield empty strings past
// their end. A map with no array values fans out to a single entry.
func FanOut(values map[string]interface{}) []map[string]string {
	n := 1
	for _, v := range values {
		if arr, ok := asArray(v); ok && len(arr) > n {
			n = len(arr)
		}
	}

	out := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		m := make(map[string]string, len(values))
		for k, v := range values {
			if arr, ok := asArray(v); ok {
				if i < len(arr) {
					m[k] = Stringify(arr[i])
				} else {
					m[k] = ""
				}
				continue
			}
			m[k] = Stringify(v)
		}
		out[i] = m
	}
	return out
}

// asArray reports whether v is an array value and returns its elements.
func asArray(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case []interface{}:
		return a, true
	case []string:
		out := make([]interface{}, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// Stringify renders a bound value as document text.
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02")
	default:
		return fmt.Sprintf("%v", x)
	}
}

// OutputNames returns the artifact base names for an n-way fan-out: the bare
// base for a single output, base_1..base_n otherwise. The extension is
// appended by the conversion pipeline.
func OutputNames(base string, n int) []string {
	if n <= 1 {
		return []string{base}
	}
	names := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("%s_%d", base, i+1)
	}
	return names
}
