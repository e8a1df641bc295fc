package alert

import "strings"

const (
	// Marker is the sentinel substring the assistant embeds in a reply that
	// needs caretaker attention.
	Marker = "[ALERT]"
	// pairDelimiter separates the two halves of an alerting reply.
	pairDelimiter = "||"
	// paragraphBreak replaces the delimiter in the user-visible text.
	paragraphBreak = "\n\n"
)

// Detect reports whether the reply carries the sentinel marker.
func Detect(reply string) bool {
	return strings.Contains(reply, Marker)
}

// Clean produces the user-visible text: the marker is stripped, every pair
// delimiter becomes a paragraph break, and surrounding whitespace is trimmed.
// The raw input must be retained separately for the alert payload.
func Clean(reply string) string {
	cleaned := strings.Replace(reply, Marker, "", 1)
	cleaned = strings.ReplaceAll(cleaned, pairDelimiter, paragraphBreak)
	return strings.TrimSpace(cleaned)
}
