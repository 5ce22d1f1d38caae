package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tanaygodse/markdowntogether/internal/op"
)

var (
	errMissingDatabase     = errors.New("database handle is required")
	errMissingIDProvider   = errors.New("id provider is required")
	errMissingCodeProvider = errors.New("room code provider is required")
	noOpLogger             = zap.NewNop()
)

// DefaultTitle is used when a document is created without one, matching the
// first-join bootstrap flow.
const (
	DefaultTitle   = "Untitled Document"
	DefaultContent = "# Welcome to collaborative editing!\n\nStart typing to see real-time collaboration in action."
)

const roomCodeAttempts = 5

// ServiceError wraps a store failure with a stable dotted code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "document.service.new"
	opCreate         = "document.create"
	opGet            = "document.get"
	opGetByRoomCode  = "document.get_by_room_code"
	opApplyOperation = "document.apply_operation"
	opUpdateTitle    = "document.update_title"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the document store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Codes      RoomCodeProvider
	Logger     *zap.Logger
}

// Service is the single mutation authority for document content. Every apply
// for a given document id is mutually exclusive with every other apply and
// title update for that id; unrelated documents mutate concurrently. That
// exclusive entry point is what yields a total per-document operation order —
// arrival order, not client intent order. There is no transform against
// concurrent edits; see the package tests for the accepted limitation.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	codes      RoomCodeProvider
	logger     *zap.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewService constructs the document store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Codes == nil {
		return nil, newServiceError(opServiceNew, "missing_code_provider", errMissingCodeProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		codes:      cfg.Codes,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// CreateDocument mints a document with a generated id and room code,
// initialized at version 1.
func (s *Service) CreateDocument(ctx context.Context, title, content string) (Document, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Document{}, newServiceError(opCreate, "id_generation_failed", err)
	}
	return s.CreateDocumentWithID(ctx, id, title, content)
}

// CreateDocumentWithID creates a document under a caller-chosen id. Used by
// the first-join bootstrap, where the client already named the document.
func (s *Service) CreateDocumentWithID(ctx context.Context, id, title, content string) (Document, error) {
	documentID, err := NewDocumentID(id)
	if err != nil {
		return Document{}, newServiceError(opCreate, "invalid_document_id", err)
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	now := s.clock().UTC()
	doc := Document{
		DocumentID:   documentID.String(),
		Title:        title,
		Content:      content,
		Version:      1,
		LastModified: now,
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&Document{}).
		Where("document_id = ?", doc.DocumentID).
		Count(&existing).Error; err != nil {
		s.logError(opCreate, "lookup_failed", err, zap.String("document_id", doc.DocumentID))
		return Document{}, newServiceError(opCreate, "lookup_failed", err)
	}
	if existing > 0 {
		return Document{}, newServiceError(opCreate, "duplicate_document_id", ErrAlreadyExists)
	}

	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		code, err := s.codes.NewCode()
		if err != nil {
			s.logError(opCreate, "room_code_generation_failed", err)
			return Document{}, newServiceError(opCreate, "room_code_generation_failed", err)
		}

		var taken int64
		if err := s.db.WithContext(ctx).Model(&Document{}).
			Where("room_code = ?", code).
			Count(&taken).Error; err != nil {
			s.logError(opCreate, "room_code_lookup_failed", err)
			return Document{}, newServiceError(opCreate, "room_code_lookup_failed", err)
		}
		if taken > 0 {
			continue
		}

		doc.RoomCode = code
		if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
			s.logError(opCreate, "insert_failed", err, zap.String("document_id", doc.DocumentID))
			return Document{}, newServiceError(opCreate, "insert_failed", err)
		}
		return doc, nil
	}

	return Document{}, newServiceError(opCreate, "room_code_exhausted", fmt.Errorf("no unique room code after %d attempts", roomCodeAttempts))
}

// GetDocument returns the current document state.
func (s *Service) GetDocument(ctx context.Context, id string) (Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("document_id = ?", id).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, newServiceError(opGet, "not_found", ErrNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("document_id", id))
		return Document{}, newServiceError(opGet, "query_failed", err)
	}
	return doc, nil
}

// GetByRoomCode resolves a shared room code to its document. Codes are
// matched case-insensitively.
func (s *Service) GetByRoomCode(ctx context.Context, code string) (Document, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return Document{}, newServiceError(opGetByRoomCode, "invalid_room_code", ErrInvalidRoomCode)
	}

	var doc Document
	err := s.db.WithContext(ctx).Where("room_code = ?", normalized).Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, newServiceError(opGetByRoomCode, "room_not_found", ErrRoomNotFound)
	}
	if err != nil {
		s.logError(opGetByRoomCode, "query_failed", err, zap.String("room_code", normalized))
		return Document{}, newServiceError(opGetByRoomCode, "query_failed", err)
	}
	return doc, nil
}

// ApplyOperation applies one insert or delete to the document and returns the
// new state. A rejected operation (unknown document, out-of-range position,
// unknown type) leaves content and version untouched. On success the version
// advances by exactly one and an audit row records the mutation.
func (s *Service) ApplyOperation(ctx context.Context, id string, operation op.Operation) (Document, error) {
	unlock := s.lockDocument(id)
	defer unlock()

	var updated Document
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc Document
		err := tx.Where("document_id = ?", id).Take(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opApplyOperation, "not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(opApplyOperation, "select_failed", err, zap.String("document_id", id))
			return newServiceError(opApplyOperation, "select_failed", err)
		}

		newContent, err := op.Apply(doc.Content, operation)
		if err != nil {
			return newServiceError(opApplyOperation, "apply_failed", err)
		}

		doc.Content = newContent
		doc.Version++
		doc.LastModified = s.clock().UTC()

		if err := tx.Save(&doc).Error; err != nil {
			s.logError(opApplyOperation, "save_failed", err, zap.String("document_id", id))
			return newServiceError(opApplyOperation, "save_failed", err)
		}

		record := OperationRecord{
			DocumentID:       doc.DocumentID,
			UserID:           operation.UserID,
			OperationType:    operation.Type,
			Position:         operation.Position,
			Length:           operation.Length,
			Content:          operation.Content,
			NewVersion:       doc.Version,
			AppliedAtSeconds: doc.LastModified.Unix(),
		}
		if err := tx.Create(&record).Error; err != nil {
			s.logError(opApplyOperation, "audit_insert_failed", err, zap.String("document_id", id))
			return newServiceError(opApplyOperation, "audit_insert_failed", err)
		}

		updated = doc
		return nil
	})
	if txErr != nil {
		return Document{}, txErr
	}

	return updated, nil
}

// UpdateTitle replaces the document title. Title changes bump the version
// like any other mutation so clients can order them against edits.
func (s *Service) UpdateTitle(ctx context.Context, id, newTitle string) (Document, error) {
	unlock := s.lockDocument(id)
	defer unlock()

	var updated Document
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc Document
		err := tx.Where("document_id = ?", id).Take(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateTitle, "not_found", ErrNotFound)
		}
		if err != nil {
			s.logError(opUpdateTitle, "select_failed", err, zap.String("document_id", id))
			return newServiceError(opUpdateTitle, "select_failed", err)
		}

		doc.Title = newTitle
		doc.Version++
		doc.LastModified = s.clock().UTC()

		if err := tx.Save(&doc).Error; err != nil {
			s.logError(opUpdateTitle, "save_failed", err, zap.String("document_id", id))
			return newServiceError(opUpdateTitle, "save_failed", err)
		}

		updated = doc
		return nil
	})
	if txErr != nil {
		return Document{}, txErr
	}

	return updated, nil
}

// lockDocument serializes mutations per document id. Lock entries are never
// reclaimed; one mutex per document that ever mutated is an acceptable cost
// for a session-scoped process.
func (s *Service) lockDocument(id string) func() {
	s.lockMu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	s.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("document store error", attrs...)
}
