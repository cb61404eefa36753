package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Header names expected on every authenticated gateway request.
const (
	headerAPIKey    = "X-Api-Key"
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
	headerSignature = "X-Signature"
)

var (
	errMissingHeaders   = errors.New("missing authentication headers")
	errUnknownAPIKey    = errors.New("unknown api key")
	errTimestampExpired = errors.New("timestamp outside allowed window")
	errNonceReplayed    = errors.New("nonce already used")
	errBadSignature     = errors.New("signature mismatch")
)

// nonceStore remembers recently seen nonces per API key so signed requests
// cannot be replayed inside the allowed timestamp window.
type nonceStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newNonceStore(ttl time.Duration) *nonceStore {
	return &nonceStore{ttl: ttl, seen: make(map[string]time.Time)}
}

// Remember records the nonce and reports whether it was fresh.
func (s *nonceStore) Remember(apiKey, nonce string, now time.Time) bool {
	key := apiKey + "\x00" + nonce
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, seenAt := range s.seen {
		if now.Sub(seenAt) > s.ttl {
			delete(s.seen, k)
		}
	}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = now
	return true
}

// Authenticator validates HMAC-signed gateway requests.
type Authenticator struct {
	secrets map[string]string
	skew    time.Duration
	nonces  *nonceStore
	nowFn   func() time.Time
}

// NewAuthenticator builds an authenticator from the configured API keys.
func NewAuthenticator(keys []APIKeyConfig, skew, nonceTTL time.Duration) *Authenticator {
	secrets := make(map[string]string, len(keys))
	for _, k := range keys {
		secrets[k.Key] = k.Secret
	}
	return &Authenticator{
		secrets: secrets,
		skew:    skew,
		nonces:  newNonceStore(nonceTTL),
		nowFn:   time.Now,
	}
}

// ComputeSignature derives the hex-encoded HMAC-SHA256 signature for a request.
// The signed payload is "timestamp\nnonce\nMETHOD\npath\nbody".
func ComputeSignature(secret, timestamp, nonce, method, path string, body []byte) string {
	payload := strings.Join([]string{timestamp, nonce, strings.ToUpper(method), path, string(body)}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate checks the request's signature headers against the configured
// keys. The body must be the exact bytes that were signed.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (string, error) {
	apiKey := strings.TrimSpace(r.Header.Get(headerAPIKey))
	timestamp := strings.TrimSpace(r.Header.Get(headerTimestamp))
	nonce := strings.TrimSpace(r.Header.Get(headerNonce))
	signature := strings.TrimSpace(r.Header.Get(headerSignature))
	if apiKey == "" || timestamp == "" || nonce == "" || signature == "" {
		return "", errMissingHeaders
	}

	secret, ok := a.secrets[apiKey]
	if !ok {
		return "", errUnknownAPIKey
	}

	ts, err := parseUnixTimestamp(timestamp)
	if err != nil {
		return "", errTimestampExpired
	}
	now := a.nowFn().UTC()
	if ts.Before(now.Add(-a.skew)) || ts.After(now.Add(a.skew)) {
		return "", errTimestampExpired
	}

	expected := ComputeSignature(secret, timestamp, nonce, r.Method, r.URL.Path, body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return "", errBadSignature
	}

	if !a.nonces.Remember(apiKey, nonce, now) {
		return "", errNonceReplayed
	}
	return apiKey, nil
}
