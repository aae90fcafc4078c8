package alerting

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/codeready-toolchain/agentcore/pkg/config"
)

// canonicalJSON marshals payload deterministically. encoding/json already
// sorts map keys (including nested maps), so a struct with a map[string]any
// field marshals the same way on every call given the same values.
func canonicalJSON(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// sign computes HMAC_SHA256(secret, timestamp + "." + canonical_json(payload))
// and returns it hex-encoded, per spec §6.
func sign(secret string, timestampUnix int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampUnix, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature a receiver would see and compares it in
// constant time, rejecting anything computed from a different secret.
func Verify(secret string, timestampUnix int64, body []byte, signature string) bool {
	want := sign(secret, timestampUnix, body)
	return hmac.Equal([]byte(want), []byte(signature))
}

func signatureHeader(sig string) string {
	return fmt.Sprintf("sha256=%s", sig)
}

// VerifyRequest is what a webhook receiver runs against an inbound
// delivery: the signature must match and the timestamp must be within
// cfg.MaxSkew of now (spec §6: "Receivers MUST reject requests with
// timestamps older than 5 min").
func VerifyRequest(cfg *config.WebhookConfig, secret string, timestampUnix int64, body []byte, signature string, now time.Time) bool {
	skew := now.Sub(time.Unix(timestampUnix, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > cfg.MaxSkew.Dur() {
		return false
	}
	return Verify(secret, timestampUnix, body, signature)
}
