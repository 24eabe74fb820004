package views

import (
	"fmt"
	"hash/fnv"

	"quad/internal/models"
)

// anonDisplayMod bounds generated display numbers to four digits.
const anonDisplayMod = 10000

// AnonDisplayNumber derives the placeholder display number for an anonymous
// participant id. The number is a pure function of the id, so the same id
// maps to the same number on every call and re-renders never flicker between
// identities.
func AnonDisplayNumber(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % anonDisplayMod)
}

// DisplayName returns the name to render for a chat participant. Anonymous
// ids are never resolved against the user profile table; they get a stable
// generated identity instead. resolve looks up the username for a real id
// and may return "" when the profile is unknown.
func DisplayName(participantID string, resolve func(id string) string) string {
	if models.IsAnonID(participantID) {
		return fmt.Sprintf("Student #%04d", AnonDisplayNumber(participantID))
	}
	if resolve != nil {
		if name := resolve(participantID); name != "" {
			return name
		}
	}
	return "Unknown"
}
