package repository

import (
	"context"

	"github.com/enessayaci/heybe/internal/domain"
)

// IdentityRepository persists identities.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, ident domain.Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error)
	GetIdentityByID(ctx context.Context, id string) (domain.Identity, error)
	// DeleteIdentity removes an identity row and reports whether a row was
	// actually deleted. A missing row is not an error.
	DeleteIdentity(ctx context.Context, id string) (bool, error)
}

// ItemRepository persists saved products.
type ItemRepository interface {
	CreateItem(ctx context.Context, item *domain.Item) error
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	ListItemsByOwner(ctx context.Context, ownerID string) ([]domain.Item, error)
	DeleteItem(ctx context.Context, id, ownerID string) (bool, error)
	CountItemsByOwner(ctx context.Context, ownerID string) (int, error)
}

// TransferRepository moves item ownership between identities.
type TransferRepository interface {
	// TransferOwnership reassigns every item owned by sourceID to targetID
	// and deletes the source identity if it is still a guest, both inside
	// one transaction. It returns the number of items moved and whether the
	// source row was deleted by this call.
	TransferOwnership(ctx context.Context, sourceID, targetID string) (moved int64, retired bool, err error)
}
