// Package auth provides JWT authentication for the eldcore API.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType indicates whether a token is an access token or refresh token.
type TokenType string

const (
	// TokenTypeAccess is a short-lived token used for API authorization.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is a long-lived token used to obtain new access tokens.
	TokenTypeRefresh TokenType = "refresh"
)

// Roles recognized by the API. Drivers submit their own records through
// a provisioned device, operators work a carrier's back office, and
// admins additionally reach the dead letter surfaces.
const (
	RoleDriver   = "driver"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Claims represents JWT claims for eldcore authentication.
//
// Every token is scoped to one carrier: queries and mutations resolve
// against the carrier in the token, never one named by the client.
// Device tokens additionally pin the device they were provisioned for.
type Claims struct {
	jwt.RegisteredClaims

	// AccountID is the unique identifier (UUID) for the account.
	AccountID string `json:"uid"`

	// CarrierID is the carrier the account belongs to.
	CarrierID string `json:"carrier_id"`

	// DeviceID pins device-provisioned tokens to their ELD unit.
	DeviceID string `json:"device_id,omitempty"`

	// Role is "driver", "operator", or "admin".
	Role string `json:"role"`

	// TokenType indicates whether this is an access or refresh token.
	TokenType TokenType `json:"token_type"`
}

// IsAccessToken returns true if this is an access token.
func (c *Claims) IsAccessToken() bool {
	return c.TokenType == TokenTypeAccess
}

// IsRefreshToken returns true if this is a refresh token.
func (c *Claims) IsRefreshToken() bool {
	return c.TokenType == TokenTypeRefresh
}

// IsAdmin returns true if the account has the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// CanOperate returns true for roles allowed on carrier back-office
// surfaces: unidentified review, certification queries, exports.
func (c *Claims) CanOperate() bool {
	return c.Role == RoleOperator || c.Role == RoleAdmin
}
