package publishauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// HeaderPublishToken is the alternative to an Authorization bearer.
const HeaderPublishToken = "X-Publish-Token"

// BearerToken extracts a token from "Authorization: Bearer" or, failing
// that, X-Publish-Token. It returns "" when neither is present.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.Header.Get(HeaderPublishToken))
}

// ParameterGetter is the part of the SSM client used to load secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadServiceSecret reads the publish service secret from an SSM
// SecureString parameter.
func LoadServiceSecret(ctx context.Context, c ParameterGetter, name string) (string, error) {
	out, err := c.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	secret := strings.TrimSpace(*out.Parameter.Value)
	if secret == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return secret, nil
}
