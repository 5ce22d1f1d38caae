package op

import "time"

// Diff computes the edit operations that transform oldText into newText,
// attributed to userID. It finds the longest common prefix and suffix and
// emits at most one delete (retaining the removed text for undo) followed by
// at most one insert covering the differing middle span.
//
// This is a deliberately coarse single-hunk diff: a keystroke-driven editing
// session only ever changes one contiguous region between snapshots, which is
// the case it is built for. Applying the returned operations to oldText in
// order always yields newText.
func Diff(oldText, newText, userID string) []Operation {
	if oldText == newText {
		return nil
	}

	oldRunes := []rune(oldText)
	newRunes := []rune(newText)

	prefix := commonPrefix(oldRunes, newRunes)
	suffix := commonSuffix(oldRunes[prefix:], newRunes[prefix:])

	removed := oldRunes[prefix : len(oldRunes)-suffix]
	inserted := newRunes[prefix : len(newRunes)-suffix]

	now := time.Now()
	operations := make([]Operation, 0, 2)

	if len(removed) > 0 {
		operations = append(operations, Operation{
			Type:      TypeDelete,
			Position:  prefix,
			Content:   string(removed),
			Length:    len(removed),
			UserID:    userID,
			Timestamp: now,
		})
	}
	if len(inserted) > 0 {
		operations = append(operations, Operation{
			Type:      TypeInsert,
			Position:  prefix,
			Content:   string(inserted),
			UserID:    userID,
			Timestamp: now,
		})
	}

	return operations
}

func commonPrefix(a, b []rune) int {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	for i := 0; i < limit; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return limit
}

func commonSuffix(a, b []rune) int {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	for i := 0; i < limit; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}
	return limit
}
