package publishhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hrescak/Draftboard-sub002/internal/log"
	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

//
// validator instance (package-level singleton)
//

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their JSON names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var errEmptyBody = xerrors.E(xerrors.KindValidation, "request body is required")

// decode reads one JSON object from the request body into dst and
// validates it. An empty body is accepted only when allowEmpty is set,
// leaving dst at its zero value.
func decode(r *http.Request, dst any, allowEmpty bool) error {
	return decodeJSON(r.Body, dst, allowEmpty)
}

func decodeJSON(body io.Reader, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	err := dec.Decode(dst)
	switch {
	case errors.Is(err, io.EOF):
		if !allowEmpty {
			return errEmptyBody
		}
	case err != nil:
		if tooLarge := bodyTooLarge(err); tooLarge != nil {
			return tooLarge
		}
		return xerrors.Ef(xerrors.KindValidation, "malformed JSON body: %v", err)
	case dec.More():
		return xerrors.E(xerrors.KindValidation, "malformed JSON body: trailing data")
	}
	return validateStruct(dst)
}

// bodyTooLarge maps a read past the MaxBody limit to a 413 error, or
// returns nil for any other error.
func bodyTooLarge(err error) error {
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		return nil
	}
	return xerrors.Ef(xerrors.KindTooLarge, "request body exceeds %d bytes", mbe.Limit)
}

// validateStruct returns the first failing field as a validation error.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return xerrors.Wrap(err, "validate request")
	}
	fe := verrs[0]
	return xerrors.Invalid(fieldPath(fe.Namespace()), fieldMessage(fe))
}

// fieldPath drops the struct name from a namespace like
// "signBody.files[2].path".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s entries", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s entries", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must not be negative"
	case "uuid":
		return "must be a UUID"
	default:
		return "is invalid"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError renders err with its public message only. Server-side
// failures are logged with the full chain.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	kind := xerrors.KindOf(err)
	status := kind.HTTPStatus()
	msg, field := xerrors.Public(err)

	logger := log.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error(ctx, err, "publish request failed", "status", status, "error_kind", kind.String())
	} else {
		logger.Debug(ctx, "publish request rejected", "status", status, "error_kind", kind.String(), "err", err)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="publish"`)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: kind.String(), Message: msg, Field: field}})
}
