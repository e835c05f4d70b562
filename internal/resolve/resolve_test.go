package resolve

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tuvix/tuvix/internal/buildlog"
)

func TestStackDetectsCycle(t *testing.T) {
	s := NewStack()
	if err := s.Push("a"); err != nil {
		t.Fatalf("push a: %v", err)
	}
	if err := s.Push("b"); err != nil {
		t.Fatalf("push b: %v", err)
	}
	err := s.Push("a")
	if err == nil {
		t.Fatalf("expected DependencyCycle error for repeated fingerprint")
	}
	cycle, ok := err.(*buildlog.DependencyCycle)
	if !ok {
		t.Fatalf("error = %v (%T), want *buildlog.DependencyCycle", err, err)
	}
	if diff := cmp.Diff([]string{"a", "b", "a"}, cycle.Path); diff != "" {
		t.Errorf("cycle path mismatch (-want +got):\n%s", diff)
	}
}

func TestStackPopAllowsRevisit(t *testing.T) {
	s := NewStack()
	if err := s.Push("a"); err != nil {
		t.Fatalf("push a: %v", err)
	}
	s.Pop()
	if err := s.Push("a"); err != nil {
		t.Fatalf("push a again after pop: %v", err)
	}
}

func TestStackSiblingsDontCollide(t *testing.T) {
	s := NewStack()
	if err := s.Push("root"); err != nil {
		t.Fatalf("push root: %v", err)
	}
	if err := s.Push("b"); err != nil {
		t.Fatalf("push b: %v", err)
	}
	s.Pop() // b's subtree finished
	if err := s.Push("c"); err != nil {
		t.Fatalf("push c: %v", err)
	}
	if err := s.Push("b"); err != nil {
		t.Fatalf("re-push b as sibling of c: %v", err)
	}
}
