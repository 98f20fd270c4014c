package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enessayaci/heybe/internal/domain"
	"github.com/enessayaci/heybe/internal/repository"
)

// guestCredential is the fixed placeholder stored in password_hash for guest
// rows. It is not a valid bcrypt hash, so it can never verify.
const guestCredential = "!guest"

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.IdentityRepository = (*Repository)(nil)
	_ repository.ItemRepository     = (*Repository)(nil)
	_ repository.TransferRepository = (*Repository)(nil)
)

// CreateIdentity inserts an identity row for either variant.
func (r *Repository) CreateIdentity(ctx context.Context, ident domain.Identity) error {
	const query = `INSERT INTO identities (id, email, password_hash, is_guest, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	switch v := ident.(type) {
	case domain.Guest:
		_, err := r.pool.Exec(ctx, query, v.ID, v.Email, []byte(guestCredential), true, v.CreatedAt, v.UpdatedAt)
		return err
	case domain.Registered:
		_, err := r.pool.Exec(ctx, query, v.ID, v.Email, v.PasswordHash, false, v.CreatedAt, v.UpdatedAt)
		return err
	default:
		return errors.New("postgres: unknown identity variant")
	}
}

// GetIdentityByEmail fetches an identity by email.
func (r *Repository) GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error) {
	const query = `SELECT id, email, password_hash, is_guest, created_at, updated_at
		FROM identities WHERE email = $1`
	return r.scanIdentity(r.pool.QueryRow(ctx, query, email))
}

// GetIdentityByID fetches an identity by primary key.
func (r *Repository) GetIdentityByID(ctx context.Context, id string) (domain.Identity, error) {
	const query = `SELECT id, email, password_hash, is_guest, created_at, updated_at
		FROM identities WHERE id = $1`
	return r.scanIdentity(r.pool.QueryRow(ctx, query, id))
}

// DeleteIdentity removes an identity row. A missing row is reported, not an
// error.
func (r *Repository) DeleteIdentity(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM identities WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) scanIdentity(row pgx.Row) (domain.Identity, error) {
	var (
		id, email            string
		hash                 []byte
		isGuest              bool
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &email, &hash, &isGuest, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if isGuest {
		return domain.Guest{ID: id, Email: email, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
	}
	return domain.Registered{ID: id, Email: email, PasswordHash: hash, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

// CreateItem inserts a saved product.
func (r *Repository) CreateItem(ctx context.Context, item *domain.Item) error {
	const query = `INSERT INTO items (id, owner_id, name, price, image_urls, source_url, site, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.pool.Exec(ctx, query, item.ID, item.OwnerID, item.Name, item.Price, item.ImageURLs, item.SourceURL, item.Site, item.CreatedAt, item.UpdatedAt)
	return err
}

// GetItemByID fetches a single item.
func (r *Repository) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	const query = `SELECT id, owner_id, name, price, image_urls, source_url, site, created_at, updated_at
		FROM items WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var it domain.Item
	if err := row.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Price, &it.ImageURLs, &it.SourceURL, &it.Site, &it.CreatedAt, &it.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &it, nil
}

// ListItemsByOwner returns every item owned by ownerID, newest first.
func (r *Repository) ListItemsByOwner(ctx context.Context, ownerID string) ([]domain.Item, error) {
	const query = `SELECT id, owner_id, name, price, image_urls, source_url, site, created_at, updated_at
		FROM items WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Price, &it.ImageURLs, &it.SourceURL, &it.Site, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeleteItem removes an item only when ownerID matches.
func (r *Repository) DeleteItem(ctx context.Context, id, ownerID string) (bool, error) {
	const query = `DELETE FROM items WHERE id = $1 AND owner_id = $2`
	tag, err := r.pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountItemsByOwner counts items owned by ownerID.
func (r *Repository) CountItemsByOwner(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(1) FROM items WHERE owner_id = $1`
	var count int
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TransferOwnership reassigns every item owned by sourceID to targetID and
// deletes the source identity, both inside one transaction. The delete only
// matches guest rows, so a permanent identity can never be retired by a
// racing transfer.
func (r *Repository) TransferOwnership(ctx context.Context, sourceID, targetID string) (int64, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE items SET owner_id = $1, updated_at = $2 WHERE owner_id = $3`,
		targetID, time.Now().UTC(), sourceID)
	if err != nil {
		return 0, false, err
	}
	moved := tag.RowsAffected()

	del, err := tx.Exec(ctx, `DELETE FROM identities WHERE id = $1 AND is_guest`, sourceID)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, err
	}
	return moved, del.RowsAffected() > 0, nil
}
