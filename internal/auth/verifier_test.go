package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
)

func signHS256(t *testing.T, secret []byte, claims map[string]any) string {
	t.Helper()
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	pl, _ := json.Marshal(claims)
	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(hdr) + "." + enc.EncodeToString(pl)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signingInput))
	return signingInput + "." + enc.EncodeToString(mac.Sum(nil))
}

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}
	p, err := v.Verify("t_acme:planner")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Tenant != "t_acme" || p.Role != "planner" {
		t.Fatalf("principal: %+v", p)
	}
	if _, err := v.Verify("garbage"); err == nil {
		t.Fatal("expected error for malformed dev token")
	}
}

func TestVerifyHMACToken(t *testing.T) {
	secret := []byte("shh")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	tok := signHS256(t, secret, map[string]any{"tenant": "t_acme", "role": "Admin", "sub": "u1"})
	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Tenant != "t_acme" || p.Role != "admin" || p.Subject != "u1" {
		t.Fatalf("principal: %+v", p)
	}
}

func TestVerifyHMACBadSignature(t *testing.T) {
	v := &Verifier{Mode: "hmac", HMACSecret: []byte("right"), TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	tok := signHS256(t, []byte("wrong"), map[string]any{"tenant": "t_acme"})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifyHMACMissingTenant(t *testing.T) {
	secret := []byte("shh")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}
	tok := signHS256(t, secret, map[string]any{"role": "admin"})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected missing tenant error")
	}
}
