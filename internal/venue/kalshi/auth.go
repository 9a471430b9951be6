// auth.go implements request signing for the ticker venue (exchange B).
//
// The venue authorizes websocket handshakes with three headers: an access
// key, a millisecond timestamp, and an RSA-PSS signature (SHA-256, MGF1 with
// SHA-256, salt length 32) over timestamp || "GET" || "/trade-api/ws/v2".
// The signing key arrives as base64-encoded PEM.
package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const signPath = "/trade-api/ws/v2"

// pssSaltLength is fixed by the venue's verification; rsa.PSSSaltLengthAuto
// produces signatures it rejects.
const pssSaltLength = 32

// Auth signs websocket handshake requests.
type Auth struct {
	apiKey string
	key    *rsa.PrivateKey
}

// NewAuth parses the base64-encoded PEM private key.
func NewAuth(apiKey, privateKeyBase64 string) (*Auth, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("kalshi api key is required")
	}
	pemBytes, err := base64.StdEncoding.DecodeString(privateKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("decode private key base64: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("private key is not valid PEM")
	}

	key, err := parseRSAKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	return &Auth{apiKey: apiKey, key: key}, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want RSA", parsed)
	}
	return key, nil
}

// Headers returns the three auth headers for a handshake at the given time.
func (a *Auth) Headers(now time.Time) (http.Header, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	sig, err := a.sign(ts)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("KALSHI-ACCESS-KEY", a.apiKey)
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	h.Set("KALSHI-ACCESS-SIGNATURE", sig)
	return h, nil
}

func (a *Auth) sign(timestamp string) (string, error) {
	digest := sha256.Sum256([]byte(timestamp + http.MethodGet + signPath))

	sig, err := rsa.SignPSS(rand.Reader, a.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: pssSaltLength,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign handshake: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
