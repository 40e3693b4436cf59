package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/guarzo/studyplan/common"
	"github.com/guarzo/studyplan/common/model"
)

var (
	ErrNoAccessToken = errors.New("login callback carries no access token")
	ErrNotLoggedIn   = errors.New("not logged in")
)

// DefaultUserName is shown when the ID token names nobody.
const DefaultUserName = "User"

// Service manages the signed-in user: tokens from the login callback and the
// profile decoded from the ID token.
type Service interface {
	CompleteLogin(values url.Values) (*model.User, error)
	CompleteLoginURL(raw string) (*model.User, error)
	Logout() error
	CurrentUser() (*model.User, error)
	GoogleID() (string, error)
}

type service struct {
	creds  *common.Credentials
	logger *slog.Logger
}

func NewService(creds *common.Credentials, logger *slog.Logger) Service {
	return &service{
		creds:  creds,
		logger: common.LoggerOrDefault(logger).With("component", "session"),
	}
}

// idClaims are the profile claims of a provider ID token.
type idClaims struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Picture    string `json:"picture"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	jwt.RegisteredClaims
}

// CompleteLogin stores the tokens delivered to the login callback. The
// returned user is nil when no ID token came along.
func (s *service) CompleteLogin(values url.Values) (*model.User, error) {
	accessToken := values.Get("access_token")
	if accessToken == "" {
		return nil, ErrNoAccessToken
	}
	idToken := values.Get("id_token")

	tok := (&oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: values.Get("refresh_token"),
	}).WithExtra(map[string]interface{}{"id_token": idToken})
	if err := s.creds.Save(tok); err != nil {
		return nil, fmt.Errorf("failed to store tokens: %w", err)
	}
	s.logger.Info("stored login tokens",
		"access", common.TokenPreview(accessToken),
		"has_refresh", tok.RefreshToken != "",
	)

	if idToken == "" {
		return nil, nil
	}

	claims, err := parseIDToken(idToken)
	if err != nil {
		return nil, err
	}
	user := userFromClaims(claims)
	if err := s.saveProfile(claims, user); err != nil {
		return nil, err
	}
	s.logger.Info("signed in", "email", user.Email)
	return user, nil
}

// CompleteLoginURL accepts the full callback URL the browser was sent to.
func (s *service) CompleteLoginURL(raw string) (*model.User, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}
	values := u.Query()
	// some providers deliver tokens in the fragment
	if values.Get("access_token") == "" && u.Fragment != "" {
		if frag, err := url.ParseQuery(u.Fragment); err == nil {
			values = frag
		}
	}
	return s.CompleteLogin(values)
}

func (s *service) Logout() error {
	if err := s.creds.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info("signed out")
	return nil
}

func (s *service) CurrentUser() (*model.User, error) {
	raw, ok := s.creds.Store().Get(common.KeyUser)
	if !ok || raw == "" {
		return nil, ErrNotLoggedIn
	}
	var user model.User
	if err := model.UnmarshalJSON([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("stored user profile is corrupt: %w", err)
	}
	return &user, nil
}

func (s *service) GoogleID() (string, error) {
	id, ok := s.creds.Store().Get(common.KeyGoogleID)
	if !ok || id == "" {
		return "", ErrNotLoggedIn
	}
	return id, nil
}

func (s *service) saveProfile(claims *idClaims, user *model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	store := s.creds.Store()
	entries := []struct{ key, value string }{
		{common.KeyName, claims.Name},
		{common.KeyEmail, claims.Email},
		{common.KeyGoogleID, claims.Subject},
		{common.KeyUser, string(data)},
	}
	for _, e := range entries {
		if e.value == "" {
			continue
		}
		if err := store.Set(e.key, e.value); err != nil {
			return fmt.Errorf("failed to store %s: %w", e.key, err)
		}
	}
	return nil
}

// parseIDToken decodes the claims without checking the signature. Only
// display fields are read from it.
func parseIDToken(idToken string) (*idClaims, error) {
	claims := &idClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode ID token: %w", err)
	}
	return claims, nil
}

func userFromClaims(c *idClaims) *model.User {
	name := c.Name
	if name == "" {
		name = strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	}
	if name == "" {
		name = DefaultUserName
	}
	return &model.User{
		Name:  name,
		Email: c.Email,
		Image: c.Picture,
	}
}

// LoginURL builds the provider consent URL. An empty state gets a random one.
func LoginURL(cfg common.AuthConfig, state string) (string, error) {
	if cfg.ClientID == "" {
		return "", errors.New("auth client_id is not configured")
	}
	if cfg.AuthURL == "" {
		return "", errors.New("auth auth_url is not configured")
	}
	if state == "" {
		state = uuid.NewString()
	}
	oc := &oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    oauth2.Endpoint{AuthURL: cfg.AuthURL},
		RedirectURL: cfg.RedirectURL,
		Scopes:      cfg.Scopes,
	}
	return oc.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}
