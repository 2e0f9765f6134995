package channel

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ChannelClaims authorizes one subscription to one channel key. Tokens are
// short-lived; the server rejects anything older than a minute.
type ChannelClaims struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	jwt.RegisteredClaims
}

const channelTokenTTL = time.Minute

// SignChannelToken mints the HS256 token sent in a subscribe frame for
// presence- and user-scoped channels.
func SignChannelToken(secret []byte, userID, channelKey string) (string, error) {
	now := time.Now()
	claims := ChannelClaims{
		UserID:  userID,
		Channel: channelKey,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(channelTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyChannelToken parses and validates a subscribe token. The channel key
// inside the token must match the key being subscribed.
func VerifyChannelToken(secret []byte, tokenString, channelKey string) (*ChannelClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChannelClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}

	claims, ok := token.Claims.(*ChannelClaims)
	if !ok || claims.Channel != channelKey {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
