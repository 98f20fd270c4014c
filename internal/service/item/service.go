package item

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/enessayaci/heybe/internal/domain"
	"github.com/enessayaci/heybe/internal/repository"
)

// ErrInvalidItem covers a save request missing its required fields.
var ErrInvalidItem = errors.New("item: name and source url are required")

// Service manages a user's saved products.
type Service struct {
	items  repository.ItemRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(items repository.ItemRepository, logger *slog.Logger) Service {
	return Service{items: items, logger: logger}
}

// SaveInput carries the fields captured by the page when a product is saved.
type SaveInput struct {
	Name      string   `json:"name"`
	Price     string   `json:"price"`
	ImageURLs []string `json:"image_urls"`
	SourceURL string   `json:"source_url"`
	Site      string   `json:"site"`
}

// Save stores a product under ownerID.
func (s Service) Save(ctx context.Context, ownerID string, input SaveInput) (*domain.Item, error) {
	name := strings.TrimSpace(input.Name)
	sourceURL := strings.TrimSpace(input.SourceURL)
	if name == "" || sourceURL == "" {
		return nil, ErrInvalidItem
	}
	now := time.Now().UTC()
	it := &domain.Item{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Price:     strings.TrimSpace(input.Price),
		ImageURLs: input.ImageURLs,
		SourceURL: sourceURL,
		Site:      strings.TrimSpace(input.Site),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.items.CreateItem(ctx, it); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.logger.Info("item saved", "item_id", it.ID, "owner_id", ownerID, "site", it.Site)
	return it, nil
}

// List returns every item owned by ownerID, newest first.
func (s Service) List(ctx context.Context, ownerID string) ([]domain.Item, error) {
	return s.items.ListItemsByOwner(ctx, ownerID)
}

// Get returns one item, or repository.ErrNotFound when it is absent or owned
// by someone else. Ownership mismatches are indistinguishable from absence so
// item identifiers cannot be enumerated.
func (s Service) Get(ctx context.Context, ownerID, itemID string) (*domain.Item, error) {
	it, err := s.items.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if it.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return it, nil
}

// Delete removes an owned item, or reports repository.ErrNotFound.
func (s Service) Delete(ctx context.Context, ownerID, itemID string) error {
	deleted, err := s.items.DeleteItem(ctx, itemID, ownerID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if !deleted {
		return repository.ErrNotFound
	}
	s.logger.Info("item deleted", "item_id", itemID, "owner_id", ownerID)
	return nil
}
