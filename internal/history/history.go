// Package history maintains a participant's local undo/redo state. It never
// rewinds the shared document: undo and redo hand back operations that the
// caller submits as ordinary forward edits.
package history

import (
	"errors"

	"github.com/tanaygodse/markdowntogether/internal/op"
)

// DefaultCapacity bounds how many of a participant's own operations are
// retained for undo.
const DefaultCapacity = 50

// ErrEmpty indicates there is nothing left to undo or redo.
var ErrEmpty = errors.New("history: stack is empty")

type entry struct {
	forward op.Operation
	inverse op.Operation
}

// Stack holds bounded undo and redo stacks of a single participant's own
// operations. It is not safe for concurrent use; each participant owns one.
type Stack struct {
	capacity int
	undo     []entry
	redo     []entry
}

// NewStack returns a stack bounded to capacity entries. Non-positive
// capacities fall back to DefaultCapacity.
func NewStack(capacity int) *Stack {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stack{capacity: capacity}
}

// Record registers a fresh operation authored by this participant. The
// inverse is computed eagerly so a later undo cannot fail; an operation whose
// inverse cannot be derived is rejected and leaves the stack untouched.
// Any recorded edit invalidates the redo history.
//
// Operations returned by Undo or Redo are re-staged internally and must not
// be passed back through Record, or a redo cycle would corrupt the stack.
func (s *Stack) Record(operation op.Operation) error {
	inverse, err := op.Invert(operation)
	if err != nil {
		return err
	}

	s.undo = append(s.undo, entry{forward: operation, inverse: inverse})
	if len(s.undo) > s.capacity {
		s.undo = s.undo[len(s.undo)-s.capacity:]
	}
	s.redo = s.redo[:0]
	return nil
}

// Undo pops the most recent operation and returns its inverse, to be sent to
// the document store as a new forward edit. The popped entry moves to the
// redo stack.
func (s *Stack) Undo() (op.Operation, error) {
	if len(s.undo) == 0 {
		return op.Operation{}, ErrEmpty
	}
	top := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, top)
	return top.inverse, nil
}

// Redo pops the most recently undone operation and returns its original
// forward form, again to be sent as a new edit. The entry moves back to the
// undo stack.
func (s *Stack) Redo() (op.Operation, error) {
	if len(s.redo) == 0 {
		return op.Operation{}, ErrEmpty
	}
	top := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, top)
	return top.forward, nil
}

// CanUndo reports whether an undo is available.
func (s *Stack) CanUndo() bool {
	return len(s.undo) > 0
}

// CanRedo reports whether a redo is available.
func (s *Stack) CanRedo() bool {
	return len(s.redo) > 0
}
