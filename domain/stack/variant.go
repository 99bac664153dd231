package stack

import (
	"fmt"
	"strings"
)

// Variant selects the node reclamation strategy.
type Variant uint8

const (
	Reclaiming Variant = iota
	Leaking
)

func (v Variant) String() string {
	switch v {
	case Reclaiming:
		return "reclaiming"
	case Leaking:
		return "leaking"
	default:
		return "unknown"
	}
}

// ParseVariant is the inverse of Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reclaiming", "":
		return Reclaiming, nil
	case "leaking":
		return Leaking, nil
	default:
		return 0, fmt.Errorf("stack: unknown variant %q", s)
	}
}
