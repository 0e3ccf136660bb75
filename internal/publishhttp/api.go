// Package publishhttp is the JSON API used by publishing clients: minting
// publish sessions and driving a deployment through init, sign and
// finalize.
//
// Every /sites operation authenticates the publish token first and then
// resolves the owner it acts on, so handlers only ever see a
// model.OwnerContext.
package publishhttp

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hrescak/Draftboard-sub002/internal/deploy"
	"github.com/hrescak/Draftboard-sub002/internal/httpmw"
	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/publishauth"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// DefaultMaxBodyBytes fits a sign request for the maximum number of files
// with generous path lengths.
const DefaultMaxBodyBytes = 1 << 20

type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (model.Actor, error)
}

// AccountVerifier checks the interactive sign-in token presented when a
// publish session is requested.
type AccountVerifier interface {
	Verify(ctx context.Context, accessToken string) (model.Account, error)
}

type SessionIssuer interface {
	Issue(ctx context.Context, userID string, minutes int) (publishauth.Issued, error)
	Revoke(ctx context.Context, token string) error
}

type Deployer interface {
	Init(ctx context.Context, owner model.OwnerContext, req deploy.InitRequest) (deploy.InitResult, error)
	Sign(ctx context.Context, owner model.OwnerContext, req deploy.SignRequest) (deploy.SignResult, error)
	Finalize(ctx context.Context, owner model.OwnerContext, req deploy.FinalizeRequest) (deploy.FinalizeResult, error)
	ListDeployments(ctx context.Context, owner model.OwnerContext, siteSlug string) ([]model.Deployment, error)
}

type Options struct {
	Auth     Authenticator
	Accounts AccountVerifier // nil disables POST /publish/session
	Sessions SessionIssuer
	Deploy   Deployer
	// Owners resolves ownerProfileSlug for service callers.
	Owners store.Queries

	// RateLimitMW wraps every publish route when set.
	RateLimitMW  func(http.Handler) http.Handler
	MaxBodyBytes int64

	OnSessionIssued func()
}

type API struct {
	opts Options
}

func New(opts Options) (*API, error) {
	if opts.Auth == nil || opts.Sessions == nil || opts.Deploy == nil || opts.Owners == nil {
		return nil, xerrors.New("publishhttp: Auth, Sessions, Deploy and Owners are required")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.OnSessionIssued == nil {
		opts.OnSessionIssued = func() {}
	}
	return &API{opts: opts}, nil
}

// RegisterRoutes mounts the publish API on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if a.opts.RateLimitMW != nil {
			r.Use(a.opts.RateLimitMW)
		}
		r.Use(httpmw.MaxBody(a.opts.MaxBodyBytes))

		r.With(httpmw.Scope("publish.session.create")).Post("/publish/session", a.createSession)
		r.With(httpmw.Scope("publish.session.revoke")).Delete("/publish/session", a.revokeSession)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.With(httpmw.Scope("publish.init")).Post("/sites/init", a.initSite)
			r.With(httpmw.Scope("publish.sign")).Post("/sites/sign", a.signFiles)
			r.With(httpmw.Scope("publish.finalize")).Post("/sites/finalize", a.finalize)
			// the segment shares its position with /sites/{owner}/{site}/*
			r.With(httpmw.Scope("publish.deployments")).Get("/sites/{site}/deployments", a.listDeployments)
		})
	})
}

type actorKey struct{}

// authenticate rejects requests without a valid publish token and stores
// the actor for handlers.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.opts.Auth.Authenticate(r.Context(), publishauth.BearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

// owner resolves the tenant for the authenticated actor.
func (a *API) owner(r *http.Request, targetSlug string) (model.OwnerContext, error) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		return model.OwnerContext{}, xerrors.E(xerrors.KindUnauthorized, "publish token required")
	}
	return publishauth.ResolveOwner(r.Context(), a.opts.Owners, actor, targetSlug)
}
