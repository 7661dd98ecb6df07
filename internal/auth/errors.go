package auth

import "errors"

var (
	// ErrNoIDToken is returned when the OAuth2 token response doesn't contain an ID token.
	// This typically indicates a misconfigured OIDC provider or an incomplete authentication flow.
	ErrNoIDToken = errors.New("no id_token in token response")

	// ErrOIDCDisabled is returned when OIDC is disabled via configuration.
	ErrOIDCDisabled = errors.New("oidc authentication is disabled")

	// ErrNonceMismatch is returned when the ID token nonce differs from the one sent with the auth request.
	ErrNonceMismatch = errors.New("id token nonce mismatch")

	// ErrMissingSubject is returned when verified claims carry no subject.
	ErrMissingSubject = errors.New("token has no subject claim")
)
