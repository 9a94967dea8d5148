package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHashAccessCode(t *testing.T) {
	if got := HashAccessCode(""); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("HashAccessCode(\"\") = %v", got)
	}
	if HashAccessCode("a") == HashAccessCode("b") {
		t.Error("different codes should hash differently")
	}
}

func newRequest(authHeader string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/openai/v1/chat/completions", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req
}

func TestAuthenticator_Authenticate(t *testing.T) {
	withCodes := Options{
		CodeHashes:   []string{HashAccessCode("secret")},
		HasServerKey: true,
	}

	tests := []struct {
		name          string
		opts          Options
		header        string
		wantOK        bool
		wantMsg       string
		wantServerKey bool
	}{
		{
			name:          "valid access code",
			opts:          withCodes,
			header:        "Bearer nk-secret",
			wantOK:        true,
			wantServerKey: true,
		},
		{
			name: "any of several codes",
			opts: Options{
				CodeHashes:   []string{HashAccessCode("first"), HashAccessCode("second"), HashAccessCode("third")},
				HasServerKey: true,
			},
			header:        "Bearer nk-second",
			wantOK:        true,
			wantServerKey: true,
		},
		{
			name:    "wrong access code",
			opts:    withCodes,
			header:  "Bearer nk-guess",
			wantMsg: "wrong access code",
		},
		{
			name:    "missing header with codes configured",
			opts:    withCodes,
			wantMsg: "empty access code",
		},
		{
			name:   "user key bypasses codes",
			opts:   withCodes,
			header: "Bearer sk-user",
			wantOK: true,
		},
		{
			name: "user key rejected when hidden",
			opts: Options{
				CodeHashes:     []string{HashAccessCode("secret")},
				HideUserAPIKey: true,
				HasServerKey:   true,
			},
			header:  "Bearer sk-user",
			wantMsg: "you are not allowed to access with your own api key",
		},
		{
			name:          "open gateway uses server key",
			opts:          Options{HasServerKey: true},
			wantOK:        true,
			wantServerKey: true,
		},
		{
			name:    "open gateway without server key",
			opts:    Options{},
			wantMsg: "missing server api key for openai",
		},
		{
			name:    "non bearer scheme is ignored",
			opts:    withCodes,
			header:  "Basic nk-secret",
			wantMsg: "empty access code",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(tt.opts)
			res := a.Authenticate(newRequest(tt.header), ProviderOpenAI)

			if res.OK() != tt.wantOK {
				t.Fatalf("Authenticate() ok = %v, want %v (msg %q)", res.OK(), tt.wantOK, res.Msg)
			}
			if res.Msg != tt.wantMsg {
				t.Errorf("Authenticate() msg = %q, want %q", res.Msg, tt.wantMsg)
			}
			if res.UseServerKey != tt.wantServerKey {
				t.Errorf("Authenticate() UseServerKey = %v, want %v", res.UseServerKey, tt.wantServerKey)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Token abc", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := ExtractBearer(newRequest(tt.header)); got != tt.want {
				t.Errorf("ExtractBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestResultContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no result on empty context")
	}

	ctx := WithResult(context.Background(), Result{UseServerKey: true})
	res, ok := FromContext(ctx)
	if !ok || !res.UseServerKey {
		t.Errorf("FromContext() = %+v, %v", res, ok)
	}
}
