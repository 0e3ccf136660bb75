package publishauth

import (
	"context"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/cryptoutil"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// Session lifetime bounds, in minutes.
const (
	MinSessionMinutes     = 5
	MaxSessionMinutes     = 240
	DefaultSessionMinutes = 60
)

// Issued is returned once when a session is created. Token is not
// recoverable afterwards.
type Issued struct {
	Token     string
	Session   model.PublishSession
	ExpiresIn time.Duration
}

// Sessions mints and revokes publish session tokens.
type Sessions struct {
	store store.Queries
	now   func() time.Time
}

func NewSessions(q store.Queries, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{store: q, now: now}
}

// Issue creates a session for userID. minutes == 0 selects the default.
func (s *Sessions) Issue(ctx context.Context, userID string, minutes int) (Issued, error) {
	if minutes == 0 {
		minutes = DefaultSessionMinutes
	}
	if minutes < MinSessionMinutes || minutes > MaxSessionMinutes {
		return Issued{}, xerrors.Invalid("expiresInMinutes", "must be between 5 and 240")
	}

	token, err := cryptoutil.NewToken()
	if err != nil {
		return Issued{}, err
	}

	ttl := time.Duration(minutes) * time.Minute
	now := s.now().UTC()
	sess := model.PublishSession{
		ID:        store.NewID(),
		UserID:    userID,
		TokenHash: cryptoutil.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, Session: sess, ExpiresIn: ttl}, nil
}

// Revoke invalidates the session behind token. Revoking an already revoked
// session succeeds.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	sess, err := s.store.SessionByTokenHash(ctx, cryptoutil.HashToken(token))
	if err != nil {
		if xerrors.Is(err, xerrors.KindNotFound) {
			return xerrors.E(xerrors.KindUnauthorized, "invalid or expired publish token")
		}
		return err
	}
	return s.store.RevokeSession(ctx, sess.ID, s.now().UTC())
}
