// internal/bridge/token.go
package bridge

import (
	"encoding/hex"
	"math/rand"
	"strings"
	"time"
)

const (
	// tokenSep joins token parts; it never appears inside a part because
	// channel leaf names, class tags and hex digests are underscore-free.
	tokenSep = "_"

	// tokenHexLen is how many hex characters of the payload participate in
	// the token, enough to tell commands apart without bloating the line.
	tokenHexLen = 12

	suffixLen      = 4
	suffixAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewToken builds the unique identifier correlating a request with its
// response: channel leaf name, device class tag, a payload digest, a
// second-granularity timestamp and a random suffix. Uniqueness for
// concurrent identical commands rests on the suffix alone.
func NewToken(deviceClass, channel string, payload []byte) string {
	digest := hex.EncodeToString(payload)
	if len(digest) > tokenHexLen {
		digest = digest[:tokenHexLen]
	}

	suffix := make([]byte, suffixLen)
	for i := range suffix {
		suffix[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}

	return strings.Join([]string{
		ChannelLeaf(channel),
		deviceClass,
		digest,
		time.Now().Format("20060102150405"),
		string(suffix),
	}, tokenSep)
}

// ChannelLeaf reduces a device path to its final segment, the name a
// channel is known by on the wire ("/dev/ttyUSB0" -> "ttyUSB0")
func ChannelLeaf(channel string) string {
	if i := strings.LastIndex(channel, "/"); i >= 0 {
		return channel[i+1:]
	}
	return channel
}

// TokenChannel extracts the channel leaf from a token or received text,
// the portion before the first separator. Responses are demultiplexed by
// this prefix.
func TokenChannel(s string) string {
	if i := strings.Index(s, tokenSep); i >= 0 {
		return s[:i]
	}
	return s
}
