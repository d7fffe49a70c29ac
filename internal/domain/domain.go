// Package domain holds the error taxonomy and small shared types of the
// recommendation core.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy (sentinels)
var (
	// ErrConfiguration is fatal: missing catalog file, missing model artifacts,
	// or a catalog whose header no longer matches the configured schema.
	ErrConfiguration = errors.New("configuration error")
	// ErrInvalidArgument marks caller mistakes such as an unknown catalog kind.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEncoderUnavailable is returned when embeddings must be computed but no
	// encoder is loaded.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	// ErrLightweightMode is returned by operations that need heavy models while
	// the engine runs without them.
	ErrLightweightMode = errors.New("lightweight mode: heavy models are disabled")
	// ErrCacheInvalid marks an on-disk embedding cache that failed validation.
	// It is recovered by a rebuild and never surfaced to callers of the engine.
	ErrCacheInvalid = errors.New("embedding cache invalid")
)

// Placeholder fills metadata fields that could not be joined.
const Placeholder = "-"

// Kind selects the recommendation catalog.
type Kind string

const (
	KindSubjects  Kind = "subjects"
	KindVacancies Kind = "vacancies"
)

// Kinds lists every catalog kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSubjects, KindVacancies}
}

// ParseKind converts user input to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "subjects", "subject", "courses":
		return KindSubjects, nil
	case "vacancies", "vacancy", "jobs":
		return KindVacancies, nil
	default:
		return "", fmt.Errorf("%w: unknown recommendation kind %q", ErrInvalidArgument, s)
	}
}
