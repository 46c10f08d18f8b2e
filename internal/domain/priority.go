package domain

import "fmt"

// Priority is the admission priority band of a UserSession. Higher values
// are released first; see Less in session.go for the full total order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityVIP
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityVIP:
		return "VIP"
	default:
		return "Unknown"
	}
}

// ParsePriority converts the caller-supplied string form (as accepted on
// enqueue) into a Priority. Unknown values are rejected by the caller via
// the returned ok flag rather than silently defaulting.
func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "Low":
		return PriorityLow, true
	case "Normal", "":
		return PriorityNormal, true
	case "High":
		return PriorityHigh, true
	case "VIP":
		return PriorityVIP, true
	default:
		return 0, false
	}
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", p.String())), nil
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) >= 2 && data[0] == '"' {
		s = string(data[1 : len(data)-1])
	}
	parsed, ok := ParsePriority(s)
	if !ok {
		return fmt.Errorf("domain: invalid priority %q", s)
	}
	*p = parsed
	return nil
}
