package room

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"secret-room/internal/apperr"
)

const (
	minNameLength   = 3
	maxNameLength   = 50
	minSecretLength = 8

	MinLifespan = time.Hour
	MaxLifespan = 24 * time.Hour

	// PersistentWindow is how far ahead a persistent room's ExpiresAt is kept.
	PersistentWindow = 24 * time.Hour
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\s]+$`)

// secretChars is the union of letters, digits, common punctuation and the
// base64 alphabet.
const secretChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"abcdefghijklmnopqrstuvwxyz" +
	"0123456789" +
	"!@#$%^&*()_+-=[]{}|;:,.<>?" +
	"+/"

func validateCreate(p CreateParams) error {
	name := strings.TrimSpace(p.Name)
	if len(name) < minNameLength {
		return fmt.Errorf("%w: room name must be at least %d characters long", apperr.ErrValidation, minNameLength)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: room name cannot exceed %d characters", apperr.ErrValidation, maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: room name can only contain letters, numbers, spaces, hyphens and underscores", apperr.ErrValidation)
	}

	if len(p.Secret) < minSecretLength {
		return fmt.Errorf("%w: secret must be at least %d characters long", apperr.ErrValidation, minSecretLength)
	}
	var invalid []string
	for _, c := range p.Secret {
		if !strings.ContainsRune(secretChars, c) {
			invalid = append(invalid, string(c))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("%w: invalid characters in secret: %s", apperr.ErrValidation, strings.Join(invalid, " "))
	}

	if strings.TrimSpace(p.OwnerID) == "" {
		return fmt.Errorf("%w: owner fingerprint is required", apperr.ErrValidation)
	}

	if p.Kind == Ephemeral {
		if p.Lifespan < MinLifespan {
			return fmt.Errorf("%w: lifespan must be at least 1 hour", apperr.ErrValidation)
		}
		if p.Lifespan > MaxLifespan {
			return fmt.Errorf("%w: lifespan cannot exceed 1 day", apperr.ErrValidation)
		}
	}
	return nil
}
