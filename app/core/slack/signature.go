package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrStaleTimestamp = errors.New("slack: request timestamp outside allowed window")
	ErrBadSignature   = errors.New("slack: signature mismatch")
)

// maxSignatureSkew bounds replay risk: requests older (or newer) than this
// are rejected before the signature is even considered.
const maxSignatureSkew = 5 * time.Minute

// VerifySignature checks the v0 signing scheme: HMAC-SHA256 over
// "v0:<timestamp>:<raw body>" with the shared signing secret, compared in
// constant time against the supplied header value.
func VerifySignature(signingSecret string, body []byte, timestamp, signature string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrStaleTimestamp, timestamp)
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(maxSignatureSkew.Seconds()) {
		return ErrStaleTimestamp
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
