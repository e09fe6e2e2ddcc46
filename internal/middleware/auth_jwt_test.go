package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{
		Sub:      "u1",
		CanSpend: true,
		Locale:   "zh-CN",
		Exp:      time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "u1" || !claims.CanSpend {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyJWTRejects(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "u1", Exp: time.Now().Add(time.Hour).Unix()})

	if _, err := VerifyJWT("other-secret", token); err == nil {
		t.Fatal("wrong secret must be rejected")
	}
	if _, err := VerifyJWT("secret", "not.a.token.at.all"); err == nil {
		t.Fatal("malformed token must be rejected")
	}
	expired, _ := SignJWT("secret", TokenClaims{Sub: "u1", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT("secret", expired); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestAuthJWTMiddleware(t *testing.T) {
	var gotUser string
	var gotCanSpend bool
	handler := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotCanSpend = CanSpendFromContext(r.Context())
	}))

	token, _ := SignJWT("secret", TokenClaims{Sub: "u1", CanSpend: true, Exp: time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUser != "u1" || !gotCanSpend {
		t.Fatalf("context user = %q canSpend = %v", gotUser, gotCanSpend)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing header status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}
}
