package models

// User is a registered credential record persisted by the auth provider.
// Name doubles as the display name shown in the roster.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
	HashVersion  string `json:"hash_version"`
	CreatedTS    int64  `json:"created_ts"`
}
