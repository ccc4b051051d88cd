package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Roles granted by static keys.
const (
	RoleReader = "reader"
	RoleQuery  = "query"
	RoleAdmin  = "admin"
)

type Identity struct {
	Name  string
	Roles []string
}

// HasRole reports whether the identity holds role. Admin holds every role.
func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role) || slices.Contains(i.Roles, RoleAdmin)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

// StaticAPIKeyValidator checks keys configured at startup. Only key digests are kept.
type StaticAPIKeyValidator struct {
	keys map[[sha256.Size]byte]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:name:role|role entries.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[[sha256.Size]byte]Identity{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, identity, err := parseKeyEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid static key entry %q: %w", entry, err)
		}
		digest := sha256.Sum256([]byte(key))
		if _, dup := validator.keys[digest]; dup {
			return nil, fmt.Errorf("invalid static key entry %q: key is listed twice", entry)
		}
		validator.keys[digest] = identity
	}
	return validator, nil
}

func parseKeyEntry(entry string) (string, Identity, error) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 {
		return "", Identity{}, errors.New("expected key:name:role|role")
	}
	key, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if key == "" || name == "" {
		return "", Identity{}, errors.New("empty key or name")
	}
	var roles []string
	for _, role := range strings.Split(parts[2], "|") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if !knownRole(role) {
			return "", Identity{}, fmt.Errorf("unknown role %q", role)
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return "", Identity{}, errors.New("at least one role is required")
	}
	slices.Sort(roles)
	return key, Identity{Name: name, Roles: slices.Compact(roles)}, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[sha256.Sum256([]byte(apiKey))]
	return identity, ok
}

func knownRole(role string) bool {
	switch role {
	case RoleReader, RoleQuery, RoleAdmin:
		return true
	default:
		return false
	}
}
