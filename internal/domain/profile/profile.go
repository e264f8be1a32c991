package profile

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired = errors.New("profile: id is required")
	ErrNotFound   = errors.New("profile: not found")
)

// Profile carries the display attributes resolved for a user id. The identity
// provider owns authentication; this type only mirrors what the document
// store knows about a user.
type Profile struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName falls back to the email local part, then the raw id, so a
// counterpart without a completed profile still renders something usable.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if email := strings.TrimSpace(p.Email); email != "" {
		if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
			return local
		}
		return email
	}
	return p.ID
}

type Repository interface {
	ByID(ctx context.Context, id string) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
}

type CreateParams struct {
	ID    string
	Name  string
	Email string
	Now   time.Time
}

// New builds a minimal profile record, used as the fallback write when a
// counterpart profile is absent from the document store.
func New(params CreateParams) (*Profile, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Profile{
		ID:        id,
		Name:      strings.TrimSpace(params.Name),
		Email:     strings.ToLower(strings.TrimSpace(params.Email)),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
