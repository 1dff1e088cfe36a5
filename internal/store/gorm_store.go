package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"inkforge/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&CreationModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveCreation inserts one creation row. Rows are never updated.
func (s *GormStore) SaveCreation(c domain.Creation) error {
	model, err := creationToModel(c)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// ListCreationsByUser returns a user's creations, newest first.
func (s *GormStore) ListCreationsByUser(userID string) ([]domain.Creation, error) {
	return s.listCreations("user_id = ?", userID)
}

// ListPublishedCreations returns published image creations, newest first.
func (s *GormStore) ListPublishedCreations() ([]domain.Creation, error) {
	return s.listCreations("publish = ? AND type = ?", true, string(domain.TypeImage))
}

func (s *GormStore) listCreations(cond string, args ...any) ([]domain.Creation, error) {
	var models []CreationModel
	if err := s.db.Where(cond, args...).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Creation, 0, len(models))
	for _, m := range models {
		c, err := creationFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

func creationToModel(c domain.Creation) (CreationModel, error) {
	model := CreationModel{
		ID:        c.ID,
		UserID:    c.UserID,
		Prompt:    c.Prompt,
		Content:   c.Content,
		Type:      string(c.Type),
		Publish:   c.Publish,
		CreatedAt: c.CreatedAt,
	}
	if len(c.Meta) > 0 {
		raw, err := json.Marshal(c.Meta)
		if err != nil {
			return CreationModel{}, fmt.Errorf("encode meta: %w", err)
		}
		model.Meta = datatypes.JSON(raw)
	}
	return model, nil
}

func creationFromModel(m CreationModel) (domain.Creation, error) {
	c := domain.Creation{
		ID:        m.ID,
		UserID:    m.UserID,
		Prompt:    m.Prompt,
		Content:   m.Content,
		Type:      domain.CreationType(m.Type),
		Publish:   m.Publish,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Meta) > 0 {
		if err := json.Unmarshal(m.Meta, &c.Meta); err != nil {
			return domain.Creation{}, fmt.Errorf("decode meta: %w", err)
		}
	}
	return c, nil
}
