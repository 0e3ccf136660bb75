package publishauth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hrescak/Draftboard-sub002/internal/model"
	"github.com/hrescak/Draftboard-sub002/internal/store"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// Claims are the access-token claims issued by the interactive sign-in
// system. The account id is the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// AccountVerifier authenticates an interactive user by their sign-in
// access token so they can mint a publish session.
type AccountVerifier struct {
	secret []byte
	store  store.Queries
	issuer string
}

func NewAccountVerifier(secret []byte, q store.Queries, issuer string) *AccountVerifier {
	return &AccountVerifier{secret: secret, store: q, issuer: issuer}
}

// Verify returns the live account behind accessToken.
func (v *AccountVerifier) Verify(ctx context.Context, accessToken string) (model.Account, error) {
	if len(v.secret) == 0 {
		return model.Account{}, xerrors.E(xerrors.KindUnavailable, "interactive sign-in is not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(accessToken), claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return model.Account{}, xerrors.WithKind(errOrInvalid(err), xerrors.KindUnauthorized, "invalid access token")
	}
	if claims.Subject == "" {
		return model.Account{}, xerrors.E(xerrors.KindUnauthorized, "invalid access token")
	}

	acct, err := v.store.AccountByID(ctx, claims.Subject)
	if err != nil {
		if xerrors.Is(err, xerrors.KindNotFound) {
			return model.Account{}, xerrors.E(xerrors.KindUnauthorized, "account not found")
		}
		return model.Account{}, err
	}
	if acct.Deactivated() {
		return model.Account{}, xerrors.E(xerrors.KindUnauthorized, "account is deactivated")
	}
	return acct, nil
}

func errOrInvalid(err error) error {
	if err != nil {
		return err
	}
	return errors.New("token is not valid")
}
