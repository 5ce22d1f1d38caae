package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tanaygodse/markdowntogether/internal/op"
)

type staticIDProvider struct {
	ids   []string
	index int
}

func (p *staticIDProvider) NewID() (string, error) {
	if p.index >= len(p.ids) {
		return "", errors.New("exhausted ids")
	}
	id := p.ids[p.index]
	p.index++
	return id, nil
}

type staticCodeProvider struct {
	codes []string
	index int
}

func (p *staticCodeProvider) NewCode() (string, error) {
	if p.index >= len(p.codes) {
		return "", errors.New("exhausted codes")
	}
	code := p.codes[p.index]
	p.index++
	return code, nil
}

func newTestService(t *testing.T, ids, codes []string) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Document{}, &OperationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1700000000, 0).UTC() },
		IDProvider: &staticIDProvider{ids: ids},
		Codes:      &staticCodeProvider{codes: codes},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func mustCreate(t *testing.T, service *Service, title, content string) Document {
	t.Helper()
	doc, err := service.CreateDocument(context.Background(), title, content)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return doc
}

func TestCreateDocumentInitializesVersionOne(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"ABCDEF"})

	doc := mustCreate(t, service, "Design notes", "# Notes")
	if doc.Version != 1 {
		t.Fatalf("expected version 1, got %d", doc.Version)
	}
	if doc.RoomCode != "ABCDEF" {
		t.Fatalf("expected room code ABCDEF, got %s", doc.RoomCode)
	}

	stored, err := service.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.Content != "# Notes" || stored.Title != "Design notes" {
		t.Fatalf("unexpected stored document: %+v", stored)
	}
}

func TestCreateDocumentDefaultsBlankTitle(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"ABCDEF"})

	doc := mustCreate(t, service, "   ", "")
	if doc.Title != DefaultTitle {
		t.Fatalf("expected default title, got %q", doc.Title)
	}
}

func TestCreateDocumentRetriesRoomCodeCollision(t *testing.T) {
	service := newTestService(t, []string{"doc-1", "doc-2"}, []string{"SAMECODE", "SAMECODE", "OTHER1"})

	first := mustCreate(t, service, "First", "")
	second := mustCreate(t, service, "Second", "")
	if first.RoomCode == second.RoomCode {
		t.Fatalf("expected distinct room codes, both got %s", first.RoomCode)
	}
}

func TestCreateDocumentWithExistingIDFails(t *testing.T) {
	service := newTestService(t, nil, []string{"CODE01", "CODE02"})

	if _, err := service.CreateDocumentWithID(context.Background(), "doc-1", "First", ""); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	_, err := service.CreateDocumentWithID(context.Background(), "doc-1", "Again", "")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	service := newTestService(t, nil, nil)

	_, err := service.GetDocument(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "document.get.not_found" {
		t.Fatalf("expected stable error code, got %v", err)
	}
}

func TestGetByRoomCodeIsCaseInsensitive(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"QWERTY"})

	mustCreate(t, service, "Doc", "")
	doc, err := service.GetByRoomCode(context.Background(), " qwerty ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.DocumentID != "doc-1" {
		t.Fatalf("expected doc-1, got %s", doc.DocumentID)
	}

	if _, err := service.GetByRoomCode(context.Background(), "NOSUCH"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestApplyOperationAdvancesVersionByOne(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"CODE01"})
	mustCreate(t, service, "Doc", "Hi")

	doc, err := service.ApplyOperation(context.Background(), "doc-1", op.Operation{
		Type:     op.TypeInsert,
		Position: 2,
		Content:  "!",
		UserID:   "user-x",
	})
	if err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if doc.Content != "Hi!" {
		t.Fatalf("expected content Hi!, got %q", doc.Content)
	}
	if doc.Version != 2 {
		t.Fatalf("expected version 2, got %d", doc.Version)
	}

	doc, err = service.ApplyOperation(context.Background(), "doc-1", op.Operation{
		Type:     op.TypeDelete,
		Position: 0,
		Length:   1,
		Content:  "H",
		UserID:   "user-x",
	})
	if err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if doc.Version != 3 || doc.Content != "i!" {
		t.Fatalf("expected version 3 with content i!, got %d %q", doc.Version, doc.Content)
	}
}

func TestApplyOperationRejectionLeavesVersionUntouched(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"CODE01"})
	mustCreate(t, service, "Doc", "Hi")

	_, err := service.ApplyOperation(context.Background(), "doc-1", op.Operation{
		Type:     op.TypeInsert,
		Position: 99,
		Content:  "!",
	})
	if !errors.Is(err, op.ErrInvalidPosition) {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}

	doc, err := service.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if doc.Version != 1 || doc.Content != "Hi" {
		t.Fatalf("expected untouched document, got version %d content %q", doc.Version, doc.Content)
	}
}

func TestApplyOperationUnknownDocument(t *testing.T) {
	service := newTestService(t, nil, nil)

	_, err := service.ApplyOperation(context.Background(), "ghost", op.Operation{Type: op.TypeInsert})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyOperationWritesAuditRecord(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"CODE01"})
	mustCreate(t, service, "Doc", "Hi")

	if _, err := service.ApplyOperation(context.Background(), "doc-1", op.Operation{
		Type:     op.TypeInsert,
		Position: 2,
		Content:  "!",
		UserID:   "user-x",
	}); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}

	var records []OperationRecord
	if err := service.db.Where("document_id = ?", "doc-1").Find(&records).Error; err != nil {
		t.Fatalf("unexpected query error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(records))
	}
	record := records[0]
	if record.OperationType != op.TypeInsert || record.NewVersion != 2 || record.UserID != "user-x" {
		t.Fatalf("unexpected audit record: %+v", record)
	}
}

func TestRoomTrafficDoesNotAffectOtherRooms(t *testing.T) {
	service := newTestService(t, []string{"doc-a", "doc-b"}, []string{"ROOMAA", "ROOMBB"})

	mustCreate(t, service, "Room A", "Hi")
	mustCreate(t, service, "Room B", "unrelated")

	docA, err := service.ApplyOperation(context.Background(), "doc-a", op.Operation{
		Type:     op.TypeInsert,
		Position: 2,
		Content:  "!",
		UserID:   "user-x",
	})
	if err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if docA.Content != "Hi!" || docA.Version != 2 {
		t.Fatalf("unexpected room A state: %+v", docA)
	}

	if _, err := service.ApplyOperation(context.Background(), "doc-b", op.Operation{
		Type:     op.TypeDelete,
		Position: 0,
		Length:   9,
		Content:  "unrelated",
		UserID:   "user-y",
	}); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}

	docA, err = service.GetDocument(context.Background(), "doc-a")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if docA.Version != 2 || docA.Content != "Hi!" {
		t.Fatalf("expected room A unaffected by room B traffic, got %+v", docA)
	}
}

func TestConcurrentAppliesSerializePerDocument(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"CODE01"})
	mustCreate(t, service, "Doc", "")

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := service.ApplyOperation(context.Background(), "doc-1", op.Operation{
				Type:     op.TypeInsert,
				Position: 0,
				Content:  "x",
				UserID:   "user-x",
			})
			if err != nil {
				t.Errorf("unexpected apply error: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, err := service.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if doc.Version != int64(1+writers) {
		t.Fatalf("expected version %d after %d applies, got %d", 1+writers, writers, doc.Version)
	}
	if len(doc.Content) != writers {
		t.Fatalf("expected %d characters, got %d", writers, len(doc.Content))
	}
}

func TestUpdateTitle(t *testing.T) {
	service := newTestService(t, []string{"doc-1"}, []string{"CODE01"})
	mustCreate(t, service, "Old title", "body")

	doc, err := service.UpdateTitle(context.Background(), "doc-1", "New title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "New title" {
		t.Fatalf("expected new title, got %q", doc.Title)
	}
	if doc.Version != 2 {
		t.Fatalf("expected title change to bump version, got %d", doc.Version)
	}
	if doc.Content != "body" {
		t.Fatalf("expected content untouched, got %q", doc.Content)
	}

	if _, err := service.UpdateTitle(context.Background(), "ghost", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
