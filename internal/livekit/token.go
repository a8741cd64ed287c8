package livekit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Each API request mints a fresh short-lived token scoped to the minimum
// grant the call needs.
const tokenTTL = 10 * time.Minute

const tokenIdentity = "voiceline-api"

type videoGrant struct {
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	RoomCreate bool   `json:"roomCreate,omitempty"`
	Room       string `json:"room,omitempty"`
}

type tokenClaims struct {
	jwt.RegisteredClaims

	Video videoGrant `json:"video"`
}

// serviceToken mints an HS256 service-account JWT with a roomAdmin grant.
// room may be empty for account-level calls (trunk/dispatch-rule CRUD); it is
// set for calls targeting a specific room (participant creation, agent
// dispatch) to keep the token scoped.
func serviceToken(apiKey, apiSecret, room string, now time.Time) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   tokenIdentity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
		Video: videoGrant{
			RoomAdmin:  true,
			RoomCreate: true,
			Room:       room,
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(apiSecret))
}
