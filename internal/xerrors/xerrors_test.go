package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"testing"
)

var errSentinel = errors.New("sentinel")

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			break
		}
	}
	return false
}

func frameFunc(pc uintptr) string {
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr.Function
}

// ---------------------------------------------------------------------------
// stack + wrap
// ---------------------------------------------------------------------------

func TestNew_StackContainsCaller(t *testing.T) {
	err := New("boom")
	if err.Error() != "boom" {
		t.Fatalf("Error() = %q", err.Error())
	}
	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("New error should have StackPCs")
	}
	if !stackContains(hs.StackPCs(), "TestNew_StackContainsCaller") {
		t.Fatal("stack should contain calling function")
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "x") != nil || Wrapf(nil, "x %d", 1) != nil || EnsureTrace(nil) != nil {
		t.Fatal("nil in should be nil out")
	}
}

func TestWrap_MessageAndUnwrap(t *testing.T) {
	err := Wrapf(errSentinel, "load site %s", "blog")
	if err.Error() != "load site blog: sentinel" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errSentinel) {
		t.Fatal("errors.Is should find sentinel through wrap")
	}
	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) {
		t.Fatal("wrap should expose PC")
	}
	if !strings.Contains(frameFunc(hp.PC()), "TestWrap_MessageAndUnwrap") {
		t.Fatalf("PC points at %q", frameFunc(hp.PC()))
	}
}

func TestEnsureTrace_DoesNotDoubleWrap(t *testing.T) {
	first := New("once")
	if EnsureTrace(first) != first {
		t.Fatal("EnsureTrace should return an already-stacked error unchanged")
	}
	plain := EnsureTrace(errSentinel)
	if plain == errSentinel {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}
	if !errors.Is(plain, errSentinel) {
		t.Fatal("stacked error should unwrap to the original")
	}
}

// ---------------------------------------------------------------------------
// kinds
// ---------------------------------------------------------------------------

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindInternal},
		{"plain", errSentinel, KindInternal},
		{"direct", E(KindConflict, "busy"), KindConflict},
		{"wrapped by Wrap", Wrap(E(KindNotFound, "site not found"), "resolve"), KindNotFound},
		{"wrapped by fmt", fmt.Errorf("outer: %w", Invalid("siteSlug", "bad")), KindValidation},
		{"WithKind", WithKind(errSentinel, KindUnavailable, "storage down"), KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKind_HTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindInternal:     http.StatusInternalServerError,
		KindValidation:   http.StatusBadRequest,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindNotFound:     http.StatusNotFound,
		KindConflict:     http.StatusConflict,
		KindUnavailable:  http.StatusServiceUnavailable,
		KindTooLarge:     http.StatusRequestEntityTooLarge,
	}
	for k, want := range tests {
		if got := k.HTTPStatus(); got != want {
			t.Errorf("%v.HTTPStatus() = %d, want %d", k, got, want)
		}
	}
}

func TestInvalid_NamesField(t *testing.T) {
	err := Invalid("files[3].path", "path traversal")
	if err.Error() != "files[3].path: path traversal" {
		t.Fatalf("Error() = %q", err.Error())
	}
	msg, field := Public(err)
	if msg != "path traversal" || field != "files[3].path" {
		t.Fatalf("Public = (%q, %q)", msg, field)
	}
}

func TestWithKind_KeepsCause(t *testing.T) {
	err := WithKind(errSentinel, KindUnavailable, "object storage unavailable")
	if !errors.Is(err, errSentinel) {
		t.Fatal("cause should be reachable")
	}
	if WithKind(nil, KindConflict, "x") != nil {
		t.Fatal("WithKind(nil) should be nil")
	}
}

func TestPublic_HidesInternalDetail(t *testing.T) {
	msg, field := Public(Wrap(errSentinel, "pq: password authentication failed"))
	if msg != "internal error" || field != "" {
		t.Fatalf("Public = (%q, %q), want generic", msg, field)
	}
	msg, _ = Public(E(KindForbidden, "cannot publish to another profile"))
	if msg != "cannot publish to another profile" {
		t.Fatalf("Public msg = %q", msg)
	}
}

func TestIs(t *testing.T) {
	if Is(nil, KindInternal) {
		t.Fatal("nil is never classified")
	}
	if !Is(E(KindConflict, "x"), KindConflict) {
		t.Fatal("Is should match kind")
	}
}
