// Package resolve implements the fingerprint stack the dependency resolver
// (spec component C5) uses to detect cycles in the recipe DAG — left
// unspecified by the original source, which would recurse forever; spec.md
// §9 requires implementers to track the resolution stack and fail
// explicitly instead.
package resolve

import "github.com/tuvix/tuvix/internal/buildlog"

// Stack tracks the fingerprints currently being built, in resolution order,
// for one top-level `tuvix <recipe>` invocation.
type Stack struct {
	onStack map[string]bool
	order   []string
}

// NewStack returns an empty resolution stack.
func NewStack() *Stack {
	return &Stack{onStack: make(map[string]bool)}
}

// Push records fp as currently being built. It returns a DependencyCycle
// error if fp is already on the stack.
func (s *Stack) Push(fp string) error {
	if s.onStack[fp] {
		return &buildlog.DependencyCycle{Path: append(append([]string{}, s.order...), fp)}
	}
	s.onStack[fp] = true
	s.order = append(s.order, fp)
	return nil
}

// Pop removes the most recently pushed fingerprint. It must be called
// exactly once for every successful Push, on every return path (success or
// failure), so that sibling subtrees of the DAG don't see a stale entry.
func (s *Stack) Pop() {
	if len(s.order) == 0 {
		return
	}
	last := s.order[len(s.order)-1]
	s.order = s.order[:len(s.order)-1]
	delete(s.onStack, last)
}
