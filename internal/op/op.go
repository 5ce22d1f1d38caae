package op

import (
	"errors"
	"fmt"
	"time"
)

// Type enumerates supported edit operations.
type Type string

const (
	// TypeInsert splices text into the document at a code-point offset.
	TypeInsert Type = "insert"
	// TypeDelete removes a span of text starting at a code-point offset.
	TypeDelete Type = "delete"
)

var (
	// ErrInvalidPosition indicates an operation position outside the document bounds.
	ErrInvalidPosition = errors.New("op: invalid position")
	// ErrUnknownType indicates an operation type outside the insert/delete set.
	ErrUnknownType = errors.New("op: unknown operation type")
	// ErrNotInvertible indicates a delete carried no content and cannot be undone.
	ErrNotInvertible = errors.New("op: operation is not invertible")
)

// Operation is an atomic insert or delete edit. Position and Length are
// measured in Unicode code points against the content the operation applies
// to, never in encoded bytes.
type Operation struct {
	Type      Type      `json:"type"`
	Position  int       `json:"position"`
	Content   string    `json:"content,omitempty"`
	Length    int       `json:"length,omitempty"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version"`
}

// Apply returns the content produced by applying operation to content. It is
// a pure function and must behave identically wherever it runs, which is what
// keeps every participant's buffer convergent.
//
// Insert positions must satisfy 0 <= pos <= len, delete positions
// 0 <= pos < len; violations are rejected rather than clamped so a failed
// apply never advances the document version. A delete whose length overruns
// the buffer is truncated at the end of the buffer.
func Apply(content string, operation Operation) (string, error) {
	runes := []rune(content)

	switch operation.Type {
	case TypeInsert:
		if operation.Position < 0 || operation.Position > len(runes) {
			return "", fmt.Errorf("%w: insert at %d in %d code points", ErrInvalidPosition, operation.Position, len(runes))
		}
		inserted := []rune(operation.Content)
		result := make([]rune, 0, len(runes)+len(inserted))
		result = append(result, runes[:operation.Position]...)
		result = append(result, inserted...)
		result = append(result, runes[operation.Position:]...)
		return string(result), nil

	case TypeDelete:
		if operation.Position < 0 || operation.Position >= len(runes) {
			return "", fmt.Errorf("%w: delete at %d in %d code points", ErrInvalidPosition, operation.Position, len(runes))
		}
		if operation.Length < 0 {
			return "", fmt.Errorf("%w: negative delete length %d", ErrInvalidPosition, operation.Length)
		}
		end := operation.Position + operation.Length
		if end > len(runes) {
			end = len(runes)
		}
		result := make([]rune, 0, len(runes)-(end-operation.Position))
		result = append(result, runes[:operation.Position]...)
		result = append(result, runes[end:]...)
		return string(result), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, operation.Type)
	}
}

// Invert returns the operation that undoes operation. Inverting an insert
// yields a delete over the inserted span. Inverting a delete requires the
// removed text to have been retained on the operation; without it the
// original content cannot be reconstructed and the operation is not undoable.
func Invert(operation Operation) (Operation, error) {
	switch operation.Type {
	case TypeInsert:
		return Operation{
			Type:     TypeDelete,
			Position: operation.Position,
			Length:   len([]rune(operation.Content)),
			UserID:   operation.UserID,
		}, nil

	case TypeDelete:
		if operation.Content == "" {
			return Operation{}, fmt.Errorf("%w: delete carried no content", ErrNotInvertible)
		}
		return Operation{
			Type:     TypeInsert,
			Position: operation.Position,
			Content:  operation.Content,
			UserID:   operation.UserID,
		}, nil

	default:
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownType, operation.Type)
	}
}
