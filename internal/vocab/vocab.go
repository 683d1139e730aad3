// Package vocab defines the practice vocabulary and the sources it is loaded from.
package vocab

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ayusman/mudra/internal/store"
)

// ErrNotFound is returned when no item carries the requested class id.
var ErrNotFound = errors.New("vocabulary item not found")

// Item is one sign the learner can practise. ClassID is the label the detector emits.
type Item struct {
	ID          string           `json:"id"`
	ClassID     string           `json:"classId"`
	ClassName   string           `json:"className"`
	DisplayName string           `json:"displayName"`
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	Difficulty  store.Difficulty `json:"difficulty"`
}

// Source lists vocabulary items in a stable order.
type Source interface {
	List(ctx context.Context) ([]Item, error)
	GetByClassID(ctx context.Context, classID string) (*Item, error)
}

// Sort orders items by numeric class id, then by class id text, then by id.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, aErr := strconv.Atoi(items[i].ClassID)
		b, bErr := strconv.Atoi(items[j].ClassID)
		switch {
		case aErr == nil && bErr == nil && a != b:
			return a < b
		case aErr == nil && bErr != nil:
			return true
		case aErr != nil && bErr == nil:
			return false
		}
		if items[i].ClassID != items[j].ClassID {
			return items[i].ClassID < items[j].ClassID
		}
		return items[i].ID < items[j].ID
	})
}

// StoreSource reads the vocabulary from the SQLite store.
type StoreSource struct {
	repo *store.VocabularyRepository
}

// NewStoreSource creates a source backed by the store's vocabulary table.
func NewStoreSource(s *store.Store) *StoreSource {
	return &StoreSource{repo: s.Vocabulary()}
}

// List returns all stored signs in class id order.
func (s *StoreSource) List(ctx context.Context) ([]Item, error) {
	signs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vocabulary: %w", err)
	}

	items := make([]Item, 0, len(signs))
	for _, sg := range signs {
		items = append(items, FromSign(sg))
	}
	Sort(items)
	return items, nil
}

// GetByClassID returns the stored sign for a detector class id.
func (s *StoreSource) GetByClassID(ctx context.Context, classID string) (*Item, error) {
	sg, err := s.repo.GetByClassID(ctx, classID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vocabulary %s: %w", classID, err)
	}
	item := FromSign(sg)
	return &item, nil
}

// StaticSource serves a fixed list of items.
type StaticSource struct {
	items []Item
}

// NewStaticSource creates a source over a copy of items. Items without an ID use their class name.
func NewStaticSource(items []Item) *StaticSource {
	cp := append([]Item(nil), items...)
	for i := range cp {
		if cp[i].ID == "" {
			cp[i].ID = cp[i].ClassName
		}
	}
	Sort(cp)
	return &StaticSource{items: cp}
}

// List returns a copy of the items.
func (s *StaticSource) List(ctx context.Context) ([]Item, error) {
	return append([]Item(nil), s.items...), nil
}

// GetByClassID looks up an item by class id.
func (s *StaticSource) GetByClassID(ctx context.Context, classID string) (*Item, error) {
	for _, it := range s.items {
		if it.ClassID == classID {
			item := it
			return &item, nil
		}
	}
	return nil, ErrNotFound
}

// FromSign converts a stored sign to an item.
func FromSign(sg *store.Sign) Item {
	return Item{
		ID:          sg.ID,
		ClassID:     sg.ClassID,
		ClassName:   sg.ClassName,
		DisplayName: sg.DisplayName,
		Description: sg.Description,
		Category:    sg.Category,
		Difficulty:  sg.Difficulty,
	}
}

// Labels maps class ids to display names, for detectors that need the label set.
func Labels(items []Item) map[string]string {
	m := make(map[string]string, len(items))
	for _, it := range items {
		m[it.ClassID] = it.DisplayName
	}
	return m
}
