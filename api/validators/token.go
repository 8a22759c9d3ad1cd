package validators

import (
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid auth token")

const bearerScheme = "bearer"

// BearerToken extracts the token from an Authorization header value. A bare
// token without the scheme is accepted.
func BearerToken(header string) (string, error) {
	token := strings.TrimLeft(header, " \t")
	if len(token) > len(bearerScheme) && strings.EqualFold(token[:len(bearerScheme)], bearerScheme) &&
		(token[len(bearerScheme)] == ' ' || token[len(bearerScheme)] == '\t') {
		token = token[len(bearerScheme):]
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.EqualFold(token, bearerScheme) || strings.ContainsAny(token, " \t") {
		return "", ErrInvalidToken
	}
	return token, nil
}
