// internal/bot/identities.go
package bot

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/omi/internal/models"
)

// IDPrefix marks synthetic bot identities.
const IDPrefix = "bot:"

var roster = []string{"Sanda", "Kasun", "Nimmi", "Ruwan"}

// NewIdentity mints a fresh bot identity named after the seat's roster slot.
func NewIdentity(seat int) models.Identity {
	name := roster[((seat%len(roster))+len(roster))%len(roster)]
	return models.Identity{
		ID:          IDPrefix + uuid.NewString(),
		DisplayName: name + " (bot)",
		AvatarRef:   "bot/" + strings.ToLower(name),
	}
}

// IsBot reports whether the identity was minted by NewIdentity.
func IsBot(id models.Identity) bool {
	return strings.HasPrefix(id.ID, IDPrefix)
}
