// ABOUTME: Viewer identity extraction from the platform-issued JWT.
// ABOUTME: Reads the token from env or XDG file and pulls the subject claim.

package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity errors
var (
	// ErrNoToken means no token was found in the environment or token file.
	// The session cannot start; the caller must redirect to authentication.
	ErrNoToken = errors.New("no auth token configured")

	// ErrMissingSubject means the token carries no usable subject claim.
	ErrMissingSubject = errors.New("token has no subject claim")
)

// Viewer is the authenticated caller of the consultation session.
type Viewer struct {
	ID    string
	Token string
}

// LoadToken returns the platform JWT from the CONSULT_TOKEN env var, the
// given file, or the default ~/.config/consult/token file, in that order.
// Returns "" if none is configured.
func LoadToken(tokenFile string) string {
	if token := os.Getenv("CONSULT_TOKEN"); token != "" {
		return token
	}

	path := tokenFile
	if path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return ""
			}
			configDir = filepath.Join(homeDir, ".config")
		}
		path = filepath.Join(configDir, "consult", "token")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}

// FromToken extracts the viewer identity from a platform JWT.
//
// The signature is not verified here: the server is the authority on token
// validity and rejects bad tokens on every call. The client only needs the
// subject to recognize its own messages on the live stream and to decide
// whether a session can start at all.
func FromToken(token string) (*Viewer, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMissingSubject
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, ErrMissingSubject
	}

	return &Viewer{ID: sub, Token: token}, nil
}
