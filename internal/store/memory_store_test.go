package store

import (
	"testing"

	"inkforge/pkg/domain"
)

func TestMemoryStoreListCreationsByUser(t *testing.T) {
	m := NewMemoryStore()
	rows := []domain.Creation{
		{ID: "a", UserID: "u1", Type: domain.TypeArticle},
		{ID: "b", UserID: "u2", Type: domain.TypeArticle},
		{ID: "c", UserID: "u1", Type: domain.TypeBlogTitle},
	}
	for _, c := range rows {
		if err := m.SaveCreation(c); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := m.ListCreationsByUser("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "a" {
		t.Fatalf("order = [%s %s], want newest first", got[0].ID, got[1].ID)
	}
}

func TestMemoryStoreListPublishedCreations(t *testing.T) {
	m := NewMemoryStore()
	rows := []domain.Creation{
		{ID: "a", UserID: "u1", Type: domain.TypeImage, Publish: true},
		{ID: "b", UserID: "u1", Type: domain.TypeImage},
		{ID: "c", UserID: "u2", Type: domain.TypeArticle, Publish: true},
		{ID: "d", UserID: "u2", Type: domain.TypeImage, Publish: true},
	}
	for _, c := range rows {
		if err := m.SaveCreation(c); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := m.ListPublishedCreations()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (published images only)", len(got))
	}
	if got[0].ID != "d" || got[1].ID != "a" {
		t.Fatalf("order = [%s %s], want newest first", got[0].ID, got[1].ID)
	}
}
