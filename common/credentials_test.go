package common_test

import (
	"testing"

	"golang.org/x/oauth2"

	"github.com/guarzo/studyplan/common"
)

func TestCredentials_ReadsBothSpellings(t *testing.T) {
	store := common.NewMemoryStore()
	creds := common.NewCredentials(store)

	if creds.AccessToken() != "" || creds.RefreshToken() != "" {
		t.Fatal("expected empty credentials")
	}

	_ = store.Set(common.KeyAccessTokenLegacy, "legacy-access")
	_ = store.Set(common.KeyRefreshTokenLegacy, "legacy-refresh")
	if got := creds.AccessToken(); got != "legacy-access" {
		t.Errorf("expected legacy access token, got %q", got)
	}
	if got := creds.RefreshToken(); got != "legacy-refresh" {
		t.Errorf("expected legacy refresh token, got %q", got)
	}

	// camelCase wins when both exist
	_ = store.Set(common.KeyAccessToken, "camel-access")
	if got := creds.AccessToken(); got != "camel-access" {
		t.Errorf("expected camelCase access token, got %q", got)
	}
}

func TestCredentials_SetAccessTokenDropsStaleSpelling(t *testing.T) {
	store := common.NewMemoryStore()
	creds := common.NewCredentials(store)

	_ = store.Set(common.KeyAccessTokenLegacy, "stale")
	if err := creds.SetAccessToken("fresh"); err != nil {
		t.Fatal(err)
	}
	if got := creds.AccessToken(); got != "fresh" {
		t.Errorf("expected fresh, got %q", got)
	}
	if _, found := store.Get(common.KeyAccessTokenLegacy); found {
		t.Error("expected legacy key to be removed")
	}
}

func TestCredentials_SaveAndClear(t *testing.T) {
	store := common.NewMemoryStore()
	creds := common.NewCredentials(store)

	tok := (&oauth2.Token{AccessToken: "a", RefreshToken: "r"}).
		WithExtra(map[string]interface{}{"id_token": "i"})
	if err := creds.Save(tok); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = store.Set(common.KeyUser, `{"name":"x"}`)

	if creds.AccessToken() != "a" || creds.RefreshToken() != "r" {
		t.Errorf("unexpected tokens: %q %q", creds.AccessToken(), creds.RefreshToken())
	}
	if v, _ := store.Get(common.KeyIDToken); v != "i" {
		t.Errorf("expected id token 'i', got %q", v)
	}

	if err := creds.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if creds.AccessToken() != "" || creds.RefreshToken() != "" {
		t.Error("expected tokens to be cleared")
	}
	if _, found := store.Get(common.KeyUser); found {
		t.Error("expected profile to be cleared")
	}
}

func TestCredentials_SaveRejectsEmpty(t *testing.T) {
	creds := common.NewCredentials(common.NewMemoryStore())
	if err := creds.Save(&oauth2.Token{}); err == nil {
		t.Fatal("expected error for empty access token")
	}
	if err := creds.Save(nil); err == nil {
		t.Fatal("expected error for nil token")
	}
}
