// Package auth decides who may obtain a session.
//
// The identity provider authenticates; this package authorizes. Gate.EvaluateLogin admits a
// principal when its asserted groups, or its stored roles if it asserts none, intersect the
// configured allow-list. Every attempt produces exactly one audit event. Admitted principals
// are upserted into the identity store and receive a server side session.
//
// OIDCProvider wraps the provider discovery, the authorization code flow and the verification
// of bearer ID tokens sent by the mobile app. RequireRole protects the admin API.
package auth
