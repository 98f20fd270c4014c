package domain

import "time"

// Identity is an account known to the backend. It has exactly two variants,
// Guest and Registered, so that a guest can never carry a password hash and a
// registered account can never miss its email.
type Identity interface {
	IdentityID() string
	IdentityEmail() string
	IsGuest() bool

	// CreatedTime and UpdatedTime expose row timestamps without committing
	// callers to a concrete variant.
	CreatedTime() time.Time
	UpdatedTime() time.Time

	identity()
}

// Guest is an auto-created anonymous account. Its email is synthetic and
// machine generated; it is never typed by a human and never authenticated
// with a password.
type Guest struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (g Guest) IdentityID() string     { return g.ID }
func (g Guest) IdentityEmail() string  { return g.Email }
func (g Guest) IsGuest() bool          { return true }
func (g Guest) CreatedTime() time.Time { return g.CreatedAt }
func (g Guest) UpdatedTime() time.Time { return g.UpdatedAt }
func (g Guest) identity()              {}

// Registered is a permanent account claimed with a human-chosen email and
// password.
type Registered struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r Registered) IdentityID() string     { return r.ID }
func (r Registered) IdentityEmail() string  { return r.Email }
func (r Registered) IsGuest() bool          { return false }
func (r Registered) CreatedTime() time.Time { return r.CreatedAt }
func (r Registered) UpdatedTime() time.Time { return r.UpdatedAt }
func (r Registered) identity()              {}

var (
	_ Identity = Guest{}
	_ Identity = Registered{}
)

// Profile projects an identity into the shape shared with page contexts and
// API clients.
func Profile(ident Identity) UserProfile {
	return UserProfile{
		ID:    ident.IdentityID(),
		Email: ident.IdentityEmail(),
		Guest: ident.IsGuest(),
	}
}
