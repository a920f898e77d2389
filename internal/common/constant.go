// Package common contains shared constants and sentinel errors used across
// IOU Keeper components.
package common

// AuthorizationHeaderName is the HTTP header carrying the bearer credential
// on outbound engine requests.
const AuthorizationHeaderName = "Authorization"

// RequestIDHeaderName correlates a client request with engine-side logs.
const RequestIDHeaderName = "X-Request-ID"
