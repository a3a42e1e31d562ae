package models

// PresenceEntry signals that an identity is currently connected. Keyed by
// UserID in the store; a write for an existing UserID overwrites in place,
// so the roster never holds two entries for the same identity.
type PresenceEntry struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	// LastActive is a server-assigned timestamp (ns), refreshed on re-write.
	LastActive int64 `json:"last_active"`
}

// Identity is an authenticated user as supplied by the auth provider.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// IsZero reports whether the identity is absent.
func (id Identity) IsZero() bool {
	return id.UserID == "" && id.DisplayName == ""
}
