package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/staffmanagement/authservice/internal/config"
)

// CallbackPath is the redirect path registered at the provider.
const CallbackPath = "/auth/oidc/callback"

// OIDCProvider handles OIDC authentication.
type OIDCProvider struct {
	config         config.OIDC
	provider       *oidc.Provider
	verifier       *oidc.IDTokenVerifier
	mobileVerifier *oidc.IDTokenVerifier
	oauth2         oauth2.Config
}

// NewOIDCProvider discovers the provider and prepares the code flow.
// baseURL is the public URL of this service, the callback path is appended to it.
func NewOIDCProvider(ctx context.Context, cfg config.OIDC, baseURL string) (*OIDCProvider, error) {
	if !cfg.Enabled {
		return nil, ErrOIDCDisabled
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	mobileClientID := cfg.MobileClientID
	if mobileClientID == "" {
		mobileClientID = cfg.ClientID
	}

	return &OIDCProvider{
		config:         cfg,
		provider:       provider,
		verifier:       provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		mobileVerifier: provider.Verifier(&oidc.Config{ClientID: mobileClientID}),
		oauth2: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  strings.TrimRight(baseURL, "/") + CallbackPath,
			Endpoint:     provider.Endpoint(),
			Scopes:       scopes,
		},
	}, nil
}

// GenerateStateToken generates a random state token for CSRF protection.
func GenerateStateToken() (string, error) {
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err //nolint:wrapcheck
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthURL returns the authorization URL for state and nonce.
func (p *OIDCProvider) AuthURL(state, nonce string) string {
	return p.oauth2.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange trades the authorization code for tokens and verifies the ID token.
// The nonce must match the one sent with AuthURL.
func (p *OIDCProvider) Exchange(ctx context.Context, code, nonce string) (Claims, string, error) {
	oauth2Token, err := p.oauth2.Exchange(ctx, code)
	if err != nil {
		return Claims{}, "", fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return Claims{}, "", ErrNoIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Claims{}, "", fmt.Errorf("failed to verify ID token: %w", err)
	}

	if idToken.Nonce != nonce {
		return Claims{}, "", ErrNonceMismatch
	}

	claims, err := p.claims(idToken)
	if err != nil {
		return Claims{}, "", err
	}

	return claims, rawIDToken, nil
}

// VerifyBearer verifies an ID token presented by the mobile app.
func (p *OIDCProvider) VerifyBearer(ctx context.Context, rawIDToken string) (Claims, error) {
	idToken, err := p.mobileVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Claims{}, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return p.claims(idToken)
}

func (p *OIDCProvider) claims(idToken *oidc.IDToken) (Claims, error) {
	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return Claims{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	claims := ClaimsFromMap(raw, p.config.GroupsClaim, p.config.UsernameClaim)
	if claims.Subject == "" {
		return Claims{}, ErrMissingSubject
	}

	return claims, nil
}

// LogoutURL constructs the provider logout URL if the provider advertises one.
// Returns an empty string otherwise.
func (p *OIDCProvider) LogoutURL(idToken, postLogoutRedirectURI string) string {
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}

	if err := p.provider.Claims(&claims); err != nil || claims.EndSessionEndpoint == "" {
		return ""
	}

	q := url.Values{}
	q.Set("id_token_hint", idToken)
	q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	q.Set("client_id", p.oauth2.ClientID)

	return claims.EndSessionEndpoint + "?" + q.Encode()
}
