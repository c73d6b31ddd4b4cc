package telegram

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Callback payload kinds.
const (
	kindGroup   = "group"
	kindTeacher = "teacher"
	kindToken   = "t"
)

// maxCallbackData is Telegram's limit on callback_data, in bytes.
const maxCallbackData = 64

type callback struct {
	Kind  string
	Value string
}

// callbackCodec encodes inline-button payloads. Payloads over the Telegram
// limit are replaced by a short token kept in memory for ttl.
type callbackCodec struct {
	tokens *cache.Cache
}

func newCallbackCodec(ttl time.Duration) *callbackCodec {
	return &callbackCodec{tokens: cache.New(ttl, 2*ttl)}
}

func (c *callbackCodec) Encode(kind, value string) string {
	data := kind + "_" + value
	if len(data) <= maxCallbackData {
		return data
	}
	sum := sha1.Sum([]byte(data))
	token := hex.EncodeToString(sum[:8])
	c.tokens.Set(token, callback{Kind: kind, Value: value}, cache.DefaultExpiration)
	return kindToken + "_" + token
}

// Decode returns false for unknown payloads and expired tokens.
func (c *callbackCodec) Decode(data string) (callback, bool) {
	kind, value, ok := strings.Cut(data, "_")
	if !ok {
		return callback{}, false
	}
	switch kind {
	case kindGroup, kindTeacher:
		return callback{Kind: kind, Value: value}, true
	case kindToken:
		v, found := c.tokens.Get(value)
		if !found {
			return callback{}, false
		}
		return v.(callback), true
	default:
		return callback{}, false
	}
}
