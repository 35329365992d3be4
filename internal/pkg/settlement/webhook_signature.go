package settlement

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>".
const SignatureHeader = "X-Webhook-Signature"

// VerifyWebhookSignature checks an HMAC-SHA256 over "<t>.<payload>". A zero
// tolerance disables the timestamp freshness check.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration, now time.Time) bool {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return false
	}
	ts, sigs := parseSignatureHeader(signatureHeader)
	if ts == "" || len(sigs) == 0 {
		return false
	}

	if tolerance > 0 {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return false
		}
		skew := now.Sub(time.Unix(unix, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return false
		}
	}

	expected := computeSignature(payload, ts, secret)
	for _, sig := range sigs {
		decoded, err := hex.DecodeString(strings.ToLower(sig))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return true
		}
	}
	return false
}

// SignPayload builds a header value for payload; used by tests and tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + hex.EncodeToString(computeSignature(payload, ts, secret))
}

func computeSignature(payload []byte, ts, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (string, []string) {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			ts = strings.TrimSpace(value)
		case "v1", "li", "te":
			if v := strings.TrimSpace(value); v != "" {
				sigs = append(sigs, v)
			}
		}
	}
	return ts, sigs
}
