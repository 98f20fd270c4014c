package domain

// UserProfile is the identity projection shared with page contexts, push
// events and API responses. It never includes credential material.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Guest bool   `json:"is_guest"`
}

// StorageRecord is the {token, user} pair held independently by the
// extension store and by page-local storage. Either half may be absent.
type StorageRecord struct {
	Token string       `json:"token,omitempty"`
	User  *UserProfile `json:"user,omitempty"`
}

// Empty reports whether the record carries neither a token nor a user.
func (r StorageRecord) Empty() bool {
	return r.Token == "" && r.User == nil
}

// Merge overlays the non-empty halves of other onto a copy of r. Used for
// partial saves: a save that only carries a token must not drop the stored
// user, and vice versa.
func (r StorageRecord) Merge(other StorageRecord) StorageRecord {
	out := r
	if other.Token != "" {
		out.Token = other.Token
	}
	if other.User != nil {
		out.User = other.User
	}
	return out
}
