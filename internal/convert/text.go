package convert

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FlattenText renders the scalar tag map as a deterministic plain-text
// summary: a content header, one "TAG: value" line per tag sorted by tag
// name, and a generation timestamp footer.
func FlattenText(values map[string]string, now time.Time) []byte {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Generated document\n")
	b.WriteString("------------------\n\n")
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(name), values[name])
	}
	fmt.Fprintf(&b, "\nGenerated: %s\n", now.Format(time.RFC3339))
	return []byte(b.String())
}
