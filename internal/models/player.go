package models

// Identity is the profile triple supplied by the profile collaborator for a
// seated player. Bots carry a synthetic Identity.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// Valid reports whether the identity can occupy a seat.
func (i Identity) Valid() bool {
	return i.ID != ""
}
