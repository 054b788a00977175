package clients

import (
	"fmt"

	"helpdesk/internal/logger"

	"github.com/gorilla/securecookie"
)

// NewCodec builds the cookie codec shared by the client cookie and the
// OAuth flow cookie. Without a hash key, random keys are generated and
// cookies do not survive a restart.
func NewCodec(hashKey, blockKey []byte) (*securecookie.SecureCookie, error) {
	if len(hashKey) == 0 {
		logger.Warn("cookie keys not configured, cookies will not survive a restart", nil)
		hashKey = securecookie.GenerateRandomKey(64)
		blockKey = securecookie.GenerateRandomKey(32)
	}

	switch len(blockKey) {
	case 0:
		blockKey = nil
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("clients: block key must be 16, 24 or 32 bytes, got %d", len(blockKey))
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(cookieLifetime.Seconds()))
	return codec, nil
}
