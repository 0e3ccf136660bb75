// Package publishauth authenticates callers of the publish API and resolves
// which tenant an operation acts on.
//
// Two credentials are accepted: the deployment-wide service secret, which
// identifies automation acting on behalf of any profile, and per-account
// publish session tokens minted by [Sessions]. Raw tokens are never stored
// or logged; sessions are looked up by SHA-256.
package publishauth

import (
	"context"
	"strings"
	"time"

	"github.com/hrescak/Draftboard-sub002/internal/cryptoutil"
	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// Failure reasons passed to Options.OnFailure.
const (
	ReasonMissing       = "missing"
	ReasonUnknown       = "unknown"
	ReasonExpired       = "expired"
	ReasonRevoked       = "revoked"
	ReasonAccountGone   = "account"
	ReasonLookupFailure = "lookup_error"
)

type Options struct {
	// ServiceSecret authenticates as the service actor. Empty disables it.
	ServiceSecret string
	Store         store.Queries
	Logger        log.Logger
	Now           func() time.Time
	// OnFailure is called with a reason for every rejected credential.
	OnFailure func(reason string)
}

// Authenticator turns a raw publish token into an Actor.
type Authenticator struct {
	secret    string
	store     store.Queries
	logger    log.Logger
	now       func() time.Time
	onFailure func(string)
}

func NewAuthenticator(o Options) (*Authenticator, error) {
	if o.Store == nil {
		return nil, xerrors.New("publishauth: Store is required")
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.OnFailure == nil {
		o.OnFailure = func(string) {}
	}
	return &Authenticator{
		secret:    strings.TrimSpace(o.ServiceSecret),
		store:     o.Store,
		logger:    o.Logger,
		now:       o.Now,
		onFailure: o.OnFailure,
	}, nil
}

var errUnauthorized = xerrors.E(xerrors.KindUnauthorized, "invalid or expired publish token")

// Authenticate checks the service secret first and falls back to publish
// sessions. Every rejection is KindUnauthorized with the same message, so
// callers cannot tell which check failed.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (model.Actor, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		a.onFailure(ReasonMissing)
		return model.Actor{}, xerrors.E(xerrors.KindUnauthorized, "missing publish token")
	}

	if cryptoutil.SecretEqual(token, a.secret) {
		return model.Actor{Kind: model.ActorService}, nil
	}

	sess, err := a.store.SessionByTokenHash(ctx, cryptoutil.HashToken(token))
	if err != nil {
		if xerrors.Is(err, xerrors.KindNotFound) {
			a.onFailure(ReasonUnknown)
			return model.Actor{}, errUnauthorized
		}
		a.onFailure(ReasonLookupFailure)
		return model.Actor{}, xerrors.Wrap(err, "look up publish session")
	}

	now := a.now()
	if !sess.ValidAt(now) {
		if sess.RevokedAt != nil {
			a.onFailure(ReasonRevoked)
		} else {
			a.onFailure(ReasonExpired)
		}
		return model.Actor{}, errUnauthorized
	}

	acct, err := a.store.AccountByID(ctx, sess.UserID)
	if err != nil || acct.Deactivated() {
		a.onFailure(ReasonAccountGone)
		if err != nil && !xerrors.Is(err, xerrors.KindNotFound) {
			return model.Actor{}, xerrors.Wrap(err, "look up session account")
		}
		return model.Actor{}, errUnauthorized
	}

	if err := a.store.TouchSession(ctx, sess.ID, now); err != nil {
		a.logger.Warn(ctx, "publish session touch failed", "session_id", sess.ID, "err", err)
	}

	return model.Actor{Kind: model.ActorUser, UserID: acct.ID, ProfileSlug: acct.ProfileSlug}, nil
}
