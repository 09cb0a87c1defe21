// Package minutes holds the structured meeting-summary record and the
// derivation of actionable tasks from its free-text actions field.
package minutes

import (
	"strings"
	"unicode/utf8"
)

// Draft is the mutable summary record produced by ingestion. All fields are
// plain strings; absent content is the empty string, never a null marker.
// The ID is assigned once at ingestion and never changes.
type Draft struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MeetingName  string `json:"meeting_name"`
	DatetimeStr  string `json:"datetime_str"`
	Participants string `json:"participants"`
	Purpose      string `json:"purpose"`
	Summary      string `json:"summary"`
	Decisions    string `json:"decisions"`
	Actions      string `json:"actions"`
	Issues       string `json:"issues"`
	Risks        string `json:"risks"`
}

const displayNameMaxRunes = 10

// DisplayName returns the meeting name for rendering, falling back to the
// ingestion title, clipped to ten runes.
func (d Draft) DisplayName() string {
	name := strings.TrimSpace(d.MeetingName)
	if name == "" {
		name = strings.TrimSpace(d.Title)
	}
	if name == "" {
		return "（無題）"
	}
	if utf8.RuneCountInString(name) > displayNameMaxRunes {
		runes := []rune(name)
		return string(runes[:displayNameMaxRunes]) + "..."
	}
	return name
}
