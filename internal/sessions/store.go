package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

// tokenBytes gives 256 bits of entropy, matching the historical
// secrets.token_hex(32) tokens.
const tokenBytes = 32

// Store issues, resolves and revokes sessions. Resolution is a pure
// read and safely concurrent; concurrent resolves of the same token are
// collapsed through a singleflight group.
type Store struct {
	repo   RepositoryPort
	cache  *Cache
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewStore constructs a Store. cache may be nil.
func NewStore(repo RepositoryPort, cache *Cache, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// TTL exposes the configured session lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue creates a session for userID with a fresh unguessable token.
func (s *Store) Issue(ctx context.Context, userID int64) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	sess := Session{
		Token:     token,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		Active:    true,
	}
	if err := s.repo.Insert(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

type resolution struct {
	user      *users.User
	expiresAt time.Time
}

// Resolve returns the owning user of a valid session. Unknown, revoked
// and expired tokens, as well as tokens of deactivated users, all yield
// the same shared.ErrInvalidSession.
func (s *Store) Resolve(ctx context.Context, token string) (*users.User, error) {
	if token == "" {
		return nil, shared.ErrInvalidSession
	}
	if user, expiresAt, ok := s.cache.Get(ctx, token); ok {
		if s.now().Before(expiresAt) {
			return user, nil
		}
		if err := s.cache.Invalidate(ctx, token); err != nil {
			s.logger.Warn("session cache invalidate", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidSession
	}

	value, err, _ := s.group.Do(token, func() (any, error) {
		sess, user, err := s.repo.GetWithUser(ctx, token)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.ErrInvalidSession
			}
			return nil, err
		}
		if !sess.Active || !s.now().Before(sess.ExpiresAt) || !user.IsActive {
			return nil, shared.ErrInvalidSession
		}
		return resolution{user: user, expiresAt: sess.ExpiresAt}, nil
	})
	if err != nil {
		return nil, err
	}
	res := value.(resolution)
	s.cache.Set(ctx, token, res.user, res.expiresAt)
	return res.user, nil
}

// Revoke deactivates a session. Idempotent: revoking an already
// inactive or unknown token succeeds.
func (s *Store) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.Revoke(ctx, token); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, token); err != nil {
		s.logger.Warn("session cache invalidate", slog.Any("error", err))
	}
	return nil
}

// RevokeAllForUser deactivates every active session of a user, e.g. on
// account deactivation.
func (s *Store) RevokeAllForUser(ctx context.Context, userID int64) error {
	tokens, err := s.repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, tokens...); err != nil {
		s.logger.Warn("session cache invalidate", slog.Int64("user_id", userID), slog.Any("error", err))
	}
	return nil
}

// RefreshUser drops cached resolutions of a user's sessions so that a
// profile change, such as a role swap, is visible on the next resolve
// instead of after the cache TTL.
func (s *Store) RefreshUser(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	tokens, err := s.repo.ActiveTokensForUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, tokens...)
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
