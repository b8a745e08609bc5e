package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// OtpChannel enumerates the delivery channels for one-time codes.
type OtpChannel string

const (
	OtpChannelSms  OtpChannel = "sms"
	OtpChannelCall OtpChannel = "call"
	OtpChannelPush OtpChannel = "push"
)

// ParseOtpChannel validates a channel name received from a client.
func ParseOtpChannel(raw string) (OtpChannel, error) {
	switch OtpChannel(strings.ToLower(strings.TrimSpace(raw))) {
	case OtpChannelSms:
		return OtpChannelSms, nil
	case OtpChannelCall:
		return OtpChannelCall, nil
	case OtpChannelPush:
		return OtpChannelPush, nil
	default:
		return "", fmt.Errorf("unknown otp channel %q", raw)
	}
}

// OtpChallenge is the single active code for a (channel, target) pair.
// Issuing a new challenge replaces the previous one unconditionally.
type OtpChallenge struct {
	Channel   OtpChannel
	Target    string
	Code      string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the challenge has elapsed its validity window.
func (c OtpChallenge) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// ErrInvalidPhone indicates a phone number that cannot be canonicalized.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone canonicalizes a phone number to E.164-ish form: spaces,
// dashes and parentheses stripped, a leading 00 rewritten to +. Numbers
// without a country code are rejected.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '(', r == ')':
			// separators are dropped
		default:
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidPhone, r)
		}
	}

	phone := b.String()
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}

	if !strings.HasPrefix(phone, "+") {
		return "", fmt.Errorf("%w: country code is required", ErrInvalidPhone)
	}
	if strings.Contains(phone[1:], "+") {
		return "", fmt.Errorf("%w: misplaced +", ErrInvalidPhone)
	}

	digits := len(phone) - 1
	if digits < 9 || digits > 15 {
		return "", fmt.Errorf("%w: expected 9 to 15 digits, got %d", ErrInvalidPhone, digits)
	}

	return phone, nil
}
