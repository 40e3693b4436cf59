package common

import (
	"errors"

	"golang.org/x/oauth2"
)

// Storage keys. Older clients wrote camelCase names, newer ones snake_case;
// readers check both.
const (
	KeyAccessToken        = "accessToken"
	KeyAccessTokenLegacy  = "access_token"
	KeyRefreshToken       = "refreshToken"
	KeyRefreshTokenLegacy = "refresh_token"
	KeyIDToken            = "id_token"

	KeyUser     = "user"
	KeyName     = "name"
	KeyEmail    = "email"
	KeyGoogleID = "google_id"
	KeyUserID   = "userId"
	KeyUserMail = "userEmail"
)

var accessKeys = []string{KeyAccessToken, KeyAccessTokenLegacy}
var refreshKeys = []string{KeyRefreshToken, KeyRefreshTokenLegacy}

// Credentials is a typed view over the token entries of a Store.
type Credentials struct {
	store Store
}

func NewCredentials(store Store) *Credentials {
	return &Credentials{store: store}
}

// Store returns the underlying key/value store.
func (c *Credentials) Store() Store {
	return c.store
}

// AccessToken returns the stored access token, or "" if none.
func (c *Credentials) AccessToken() string {
	return firstOf(c.store, accessKeys)
}

// RefreshToken returns the stored refresh token, or "" if none.
func (c *Credentials) RefreshToken() string {
	return firstOf(c.store, refreshKeys)
}

// SetAccessToken overwrites the access token. The value is written under
// the camelCase key, which readers check first, and the other spelling is
// dropped so a stale copy cannot shadow it.
func (c *Credentials) SetAccessToken(token string) error {
	return c.replace(accessKeys, token)
}

// SetRefreshToken overwrites the refresh token.
func (c *Credentials) SetRefreshToken(token string) error {
	return c.replace(refreshKeys, token)
}

// Save stores a freshly issued token set. Empty refresh or ID tokens leave the
// existing entries untouched.
func (c *Credentials) Save(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("token has no access token")
	}
	if err := c.SetAccessToken(tok.AccessToken); err != nil {
		return err
	}
	if tok.RefreshToken != "" {
		if err := c.SetRefreshToken(tok.RefreshToken); err != nil {
			return err
		}
	}
	if id, ok := tok.Extra("id_token").(string); ok && id != "" {
		if err := c.store.Set(KeyIDToken, id); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every credential and profile entry written at login.
func (c *Credentials) Clear() error {
	keys := []string{
		KeyAccessToken, KeyAccessTokenLegacy,
		KeyRefreshToken, KeyRefreshTokenLegacy,
		KeyIDToken,
		KeyUser, KeyName, KeyEmail, KeyGoogleID, KeyUserID, KeyUserMail,
	}
	var errs []error
	for _, k := range keys {
		if err := c.store.Delete(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Credentials) replace(keys []string, value string) error {
	if err := c.store.Set(keys[0], value); err != nil {
		return err
	}
	for _, k := range keys[1:] {
		if err := c.store.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func firstOf(store Store, keys []string) string {
	for _, k := range keys {
		if v, ok := store.Get(k); ok && v != "" {
			return v
		}
	}
	return ""
}
