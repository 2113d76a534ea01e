package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TicketSigner issues and validates short-lived HMAC tickets binding a
// subject (a user id) to a scope such as the notification feed.
type TicketSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTicketSigner constructs a signer with the provided secret and TTL.
func NewTicketSigner(secret string, ttl time.Duration) *TicketSigner {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TicketSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a signed ticket for subject within scope.
func (s *TicketSigner) Generate(subject, scope string) (string, time.Time, error) {
	if subject == "" || scope == "" {
		return "", time.Time{}, fmt.Errorf("subject and scope required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	encodedSubject := base64.RawURLEncoding.EncodeToString([]byte(subject))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(scope, encodedSubject, ts)
	return strings.Join([]string{encodedSubject, ts, signature}, "."), expiresAt, nil
}

// Parse validates a ticket for scope and returns the embedded subject.
func (s *TicketSigner) Parse(ticket, scope string) (string, error) {
	parts := strings.Split(ticket, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid ticket format")
	}
	encodedSubject, ts, signature := parts[0], parts[1], parts[2]

	expected := s.sign(scope, encodedSubject, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", fmt.Errorf("invalid ticket signature")
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid ticket timestamp")
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", fmt.Errorf("ticket expired")
	}
	subject, err := base64.RawURLEncoding.DecodeString(encodedSubject)
	if err != nil {
		return "", fmt.Errorf("decode subject: %w", err)
	}
	return string(subject), nil
}

func (s *TicketSigner) sign(scope, encodedSubject, ts string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(scope + "|" + encodedSubject + "|" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
