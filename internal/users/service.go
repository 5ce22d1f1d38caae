package users

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// palette is the fixed set of participant colors. Assignment hashes the user
// id so the same participant keeps the same color across reconnects.
var palette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E9",
}

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// IDProvider issues new participant identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for the participant service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service manages participant records and the in-memory room membership.
// User rows persist across restarts; membership is connection-scoped and
// rebuilt as participants rejoin.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger

	mu         sync.RWMutex
	membership map[string][]string // documentID -> ordered user ids
	documents  map[string]string   // userID -> documentID
}

// NewService constructs the participant service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: %w", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: %w", errMissingIDProvider)
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
		logger:     logger,
		membership: make(map[string][]string),
		documents:  make(map[string]string),
	}, nil
}

// CreateUser mints a participant with a generated id and a palette color.
func (s *Service) CreateUser(name string) (User, error) {
	trimmed, err := validateName(name)
	if err != nil {
		return User{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: id generation failed: %w", err)
	}

	user := User{
		UserID:   id,
		Name:     trimmed,
		Color:    ColorFor(id),
		JoinedAt: s.clock().UTC(),
	}
	if err := s.db.Create(&user).Error; err != nil {
		s.logger.Error("user insert failed", zap.String("user_id", id), zap.Error(err))
		return User{}, fmt.Errorf("users: create failed: %w", err)
	}
	return user, nil
}

// RegisterUser upserts a self-declared participant arriving over a join or
// room message. Identity is whatever the connection claims; missing colors
// are filled from the palette.
func (s *Service) RegisterUser(user User) (User, error) {
	id, err := NewUserID(user.UserID)
	if err != nil {
		return User{}, err
	}
	user.UserID = id.String()
	if _, err := validateName(user.Name); err != nil {
		return User{}, err
	}
	if user.Color == "" {
		user.Color = ColorFor(user.UserID)
	}
	if user.JoinedAt.IsZero() {
		user.JoinedAt = s.clock().UTC()
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "color"}),
	}).Create(&user).Error
	if err != nil {
		s.logger.Error("user upsert failed", zap.String("user_id", user.UserID), zap.Error(err))
		return User{}, fmt.Errorf("users: register failed: %w", err)
	}
	return user, nil
}

// GetUser returns the stored participant record.
func (s *Service) GetUser(userID string) (User, error) {
	var user User
	err := s.db.Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: lookup failed: %w", err)
	}
	return user, nil
}

// JoinDocument adds the participant to a document's member list. A
// participant belongs to at most one document at a time; joining a second
// document implicitly leaves the first.
func (s *Service) JoinDocument(userID, documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, ok := s.documents[userID]; ok && previous != documentID {
		s.removeMemberLocked(previous, userID)
	}

	for _, member := range s.membership[documentID] {
		if member == userID {
			s.documents[userID] = documentID
			return
		}
	}
	s.membership[documentID] = append(s.membership[documentID], userID)
	s.documents[userID] = documentID
}

// LeaveDocument removes the participant from the document's member list.
func (s *Service) LeaveDocument(userID, documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeMemberLocked(documentID, userID)
	if s.documents[userID] == documentID {
		delete(s.documents, userID)
	}
}

// DocumentUsers returns the stored records for the document's current
// members, in join order. Members without a stored record are skipped.
func (s *Service) DocumentUsers(documentID string) ([]User, error) {
	s.mu.RLock()
	memberIDs := make([]string, len(s.membership[documentID]))
	copy(memberIDs, s.membership[documentID])
	s.mu.RUnlock()

	if len(memberIDs) == 0 {
		return []User{}, nil
	}

	var records []User
	if err := s.db.Where("user_id IN ?", memberIDs).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("users: member query failed: %w", err)
	}

	byID := make(map[string]User, len(records))
	for _, record := range records {
		byID[record.UserID] = record
	}

	members := make([]User, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if record, ok := byID[memberID]; ok {
			members = append(members, record)
		}
	}
	return members, nil
}

// ColorFor deterministically maps a participant id onto the palette.
func ColorFor(userID string) string {
	hasher := fnv.New32a()
	hasher.Write([]byte(userID))
	return palette[hasher.Sum32()%uint32(len(palette))]
}

func (s *Service) removeMemberLocked(documentID, userID string) {
	members := s.membership[documentID]
	for i, member := range members {
		if member == userID {
			s.membership[documentID] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(s.membership[documentID]) == 0 {
		delete(s.membership, documentID)
	}
}

func validateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	return trimmed, nil
}
