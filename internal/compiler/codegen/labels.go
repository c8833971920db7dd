package codegen

import "fmt"

// LabelManager allocates unique code labels. Identity is a monotonic
// counter so listings stay deterministic run to run.
type LabelManager struct {
	next int
}

// Fresh returns a new label with the given stem, e.g. "if_else_7".
func (m *LabelManager) Fresh(stem string) string {
	m.next++
	return fmt.Sprintf("%s_%d", stem, m.next)
}
