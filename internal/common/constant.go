// Package common contains shared constants and sentinel errors used across
// auth service components.
package common

// AuthorizationHeaderName is the HTTP header used to carry the access token
// on inbound requests ("Bearer <token>").
const AuthorizationHeaderName = "Authorization"

// RefreshTokenCookieName is the cookie that transports the refresh token.
// The engine itself treats the token as an opaque string; only the HTTP
// layer knows about the cookie.
const RefreshTokenCookieName = "refreshToken"
