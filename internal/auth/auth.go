package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// ProviderKind identifies which upstream family a request is authenticated for.
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
)

// AccessCodePrefix marks a bearer token as a gateway access code rather than
// a caller-supplied upstream key.
const AccessCodePrefix = "nk-"

// Result is the outcome of an authentication check. On failure it is written
// to the caller verbatim as {"error": true, "msg": "..."}.
type Result struct {
	Error bool   `json:"error"`
	Msg   string `json:"msg,omitempty"`

	// UseServerKey tells the forwarder to substitute the configured upstream key.
	UseServerKey bool `json:"-"`
}

// OK reports whether the request may proceed.
func (r Result) OK() bool {
	return !r.Error
}

func failure(msg string) Result {
	return Result{Error: true, Msg: msg}
}

// Gate validates caller credentials for a provider.
type Gate interface {
	Authenticate(r *http.Request, kind ProviderKind) Result
}

// Options configures an Authenticator.
type Options struct {
	// CodeHashes are hex SHA-256 hashes of the accepted access codes.
	CodeHashes []string
	// HideUserAPIKey rejects callers that bring their own upstream key.
	HideUserAPIKey bool
	// HasServerKey reports whether an upstream key is configured.
	HasServerKey bool
}

// Authenticator checks access codes and caller supplied keys.
type Authenticator struct {
	codes          map[string]struct{} // keyhash set
	hideUserAPIKey bool
	hasServerKey   bool
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(opts Options) *Authenticator {
	a := &Authenticator{
		codes:          make(map[string]struct{}, len(opts.CodeHashes)),
		hideUserAPIKey: opts.HideUserAPIKey,
		hasServerKey:   opts.HasServerKey,
	}
	for _, h := range opts.CodeHashes {
		a.codes[strings.ToLower(h)] = struct{}{}
	}
	return a
}

// Authenticate implements Gate.
func (a *Authenticator) Authenticate(r *http.Request, kind ProviderKind) Result {
	token := ExtractBearer(r)

	var accessCode, userKey string
	if strings.HasPrefix(token, AccessCodePrefix) {
		accessCode = strings.TrimPrefix(token, AccessCodePrefix)
	} else {
		userKey = token
	}

	if len(a.codes) > 0 && userKey == "" {
		if accessCode == "" {
			return failure("empty access code")
		}
		if !a.validCode(accessCode) {
			return failure("wrong access code")
		}
	}

	if userKey != "" {
		if a.hideUserAPIKey {
			return failure("you are not allowed to access with your own api key")
		}
		return Result{}
	}

	if !a.hasServerKey {
		return failure("missing server api key for " + string(kind))
	}
	return Result{UseServerKey: true}
}

func (a *Authenticator) validCode(code string) bool {
	hash := []byte(HashAccessCode(code))
	// Constant-time comparison against every known hash
	match := 0
	for known := range a.codes {
		match |= subtle.ConstantTimeCompare(hash, []byte(known))
	}
	return match == 1
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>"
// header, or "" when absent.
func ExtractBearer(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// HashAccessCode creates a SHA-256 hash of an access code for storage.
func HashAccessCode(code string) string {
	hash := sha256.Sum256([]byte(code))
	return hex.EncodeToString(hash[:])
}

type resultKey struct{}

// WithResult stores an authentication result on the context.
func WithResult(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, resultKey{}, res)
}

// FromContext retrieves the authentication result, if any.
func FromContext(ctx context.Context) (Result, bool) {
	res, ok := ctx.Value(resultKey{}).(Result)
	return res, ok
}
