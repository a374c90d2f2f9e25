package pipeline

import "fmt"

// Kind tags the design-level error categories from spec.md §7 so callers
// can branch with errors.As instead of parsing strings.
type Kind int

const (
	KindBadInput Kind = iota
	KindBadHeader
	KindBadRange
	KindBadTranslation
	KindOverlappingSegments
	KindWriteError
)

func (k Kind) String() string {
	switch k {
	case KindBadInput:
		return "BadInput"
	case KindBadHeader:
		return "BadHeader"
	case KindBadRange:
		return "BadRange"
	case KindBadTranslation:
		return "BadTranslation"
	case KindOverlappingSegments:
		return "OverlappingSegments"
	case KindWriteError:
		return "WriteError"
	default:
		return "Unknown"
	}
}

// Error is a fatal pipeline failure carrying the offending path, segment,
// or field where applicable (§7: "diagnostic carrying the offending path,
// segment, and field"). Every run-ending error is one of these.
type Error struct {
	Kind    Kind
	Path    string
	Segment string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg += fmt.Sprintf(" path=%q", e.Path)
	}
	if e.Segment != "" {
		msg += fmt.Sprintf(" segment=%s", e.Segment)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" field=%s", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
