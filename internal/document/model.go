package document

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tanaygodse/markdowntogether/internal/op"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("document: invalid document id")
	// ErrInvalidRoomCode indicates that a room code is empty or malformed.
	ErrInvalidRoomCode = errors.New("document: invalid room code")
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document: not found")
	// ErrRoomNotFound indicates no document carries the requested room code.
	ErrRoomNotFound = errors.New("document: room not found")
	// ErrAlreadyExists indicates a create collided with an existing document id.
	ErrAlreadyExists = errors.New("document: already exists")
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// Document is the authoritative state of one shared document. Content is a
// sequence of Unicode code points; Version increases by exactly one on every
// successful mutation.
type Document struct {
	DocumentID   string    `gorm:"column:document_id;primaryKey;size:190;not null" json:"id"`
	RoomCode     string    `gorm:"column:room_code;size:16;not null;uniqueIndex:idx_documents_room_code" json:"roomCode"`
	Title        string    `gorm:"column:title;size:512;not null" json:"title"`
	Content      string    `gorm:"column:content;type:text;not null" json:"content"`
	Version      int64     `gorm:"column:version;not null;default:1" json:"version"`
	LastModified time.Time `gorm:"column:last_modified;not null" json:"lastModified"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// OperationRecord is an append-only audit row written for every accepted
// operation, mirroring the mutation sequence the version counter identifies.
type OperationRecord struct {
	RecordID         int64   `gorm:"column:record_id;primaryKey;autoIncrement"`
	DocumentID       string  `gorm:"column:document_id;size:190;not null;index:idx_operations_document,priority:1"`
	UserID           string  `gorm:"column:user_id;size:190;not null"`
	OperationType    op.Type `gorm:"column:op;size:16;not null"`
	Position         int     `gorm:"column:position;not null"`
	Length           int     `gorm:"column:length;not null;default:0"`
	Content          string  `gorm:"column:content;type:text;not null;default:''"`
	NewVersion       int64   `gorm:"column:new_version;not null;index:idx_operations_document,priority:2"`
	AppliedAtSeconds int64   `gorm:"column:applied_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (OperationRecord) TableName() string {
	return "document_operations"
}
