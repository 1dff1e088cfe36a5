package store

import "inkforge/pkg/domain"

// Store persists creation records. Creations are insert-only.
type Store interface {
	SaveCreation(c domain.Creation) error
	ListCreationsByUser(userID string) ([]domain.Creation, error)
	ListPublishedCreations() ([]domain.Creation, error)
}
