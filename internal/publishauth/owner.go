package publishauth

import (
	"context"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/pathutil"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// ResolveOwner decides which account a publish operation acts on.
//
// A user may only publish to their own profile; naming any other profile is
// Forbidden whether or not it exists. The service actor must name a target
// profile, which has to exist and be active.
func ResolveOwner(ctx context.Context, q store.Queries, actor model.Actor, targetProfileSlug string) (model.OwnerContext, error) {
	switch actor.Kind {
	case model.ActorUser:
		if targetProfileSlug != "" {
			target, err := pathutil.NormalizeSlug(targetProfileSlug)
			if err != nil || target != actor.ProfileSlug {
				return model.OwnerContext{}, xerrors.E(xerrors.KindForbidden, "cannot publish to another profile")
			}
		}
		return model.OwnerContext{OwnerID: actor.UserID, ProfileSlug: actor.ProfileSlug}, nil

	case model.ActorService:
		if targetProfileSlug == "" {
			return model.OwnerContext{}, xerrors.Invalid("ownerProfileSlug", "is required for service tokens")
		}
		target, err := pathutil.NormalizeSlug(targetProfileSlug)
		if err != nil {
			return model.OwnerContext{}, xerrors.Invalid("ownerProfileSlug", "is not a valid profile slug")
		}
		acct, err := q.AccountBySlug(ctx, target)
		if err != nil {
			return model.OwnerContext{}, err
		}
		if acct.Deactivated() {
			return model.OwnerContext{}, xerrors.E(xerrors.KindForbidden, "profile is deactivated")
		}
		return model.OwnerContext{OwnerID: acct.ID, ProfileSlug: acct.ProfileSlug}, nil

	default:
		return model.OwnerContext{}, xerrors.E(xerrors.KindUnauthorized, "unauthenticated")
	}
}
