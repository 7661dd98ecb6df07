// Package oidc provides the handlers of the OpenID Connect login flow.
//
// The callback hands the verified claims to the login gate. A session cookie is only set when the
// gate admits the principal; a denied login ends with a 403 and no cookie.
//
//	GET /auth/oidc/login    - redirect to the provider with state and nonce
//	GET /auth/oidc/callback - exchange the code and evaluate the login
//	GET /auth/oidc/logout   - drop the session and end the provider session
package oidc
