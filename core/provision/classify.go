package provision

import "strings"

type Classification int

const (
	RealError Classification = iota
	AlreadyExists
)

func (c Classification) String() string {
	if c == AlreadyExists {
		return "already-exists"
	}
	return "real-error"
}

// alreadyExistsMarkers are the fragments identity providers use when an email is already known to them.
var alreadyExistsMarkers = []string{"already", "exists", "registered", "been invited"}

// Classify maps a provider error message to AlreadyExists or RealError.
func Classify(message string) Classification {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, marker := range alreadyExistsMarkers {
		if strings.Contains(msg, marker) {
			return AlreadyExists
		}
	}
	return RealError
}
