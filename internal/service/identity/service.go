package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

// Service resolves a user id to a deliverable address.
type Service interface {
	Lookup(ctx context.Context, userID uuid.UUID) (*model.Recipient, error)
}

type service struct {
	users repository.UserRepository
	cache *cache.Cache
}

// NewService wraps the user repository with a TTL cache. A ttl of zero
// disables caching. Misses are never cached.
func NewService(users repository.UserRepository, ttl time.Duration) Service {
	s := &service{users: users}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

func (s *service) Lookup(ctx context.Context, userID uuid.UUID) (*model.Recipient, error) {
	key := userID.String()
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			r := v.(model.Recipient)
			return &r, nil
		}
	}

	r, err := s.users.GetRecipient(ctx, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(r.Email) == "" {
		return nil, apperrors.NewRecipientNotFound(userID, fmt.Errorf("no email on record"))
	}
	if strings.TrimSpace(r.Name) == "" {
		r.Name = DisplayName(r.Email)
	}

	if s.cache != nil {
		s.cache.SetDefault(key, *r)
	}
	return r, nil
}

// DisplayName falls back to the local part of an address.
func DisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
