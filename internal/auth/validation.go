package auth

import (
	"regexp"
	"strings"
)

// Result is the outcome of a validator. Reason is human-readable and safe to
// return to the client.
type Result struct {
	Valid  bool
	Reason string
}

func valid() Result {
	return Result{Valid: true}
}

func invalid(reason string) Result {
	return Result{Valid: false, Reason: reason}
}

// ValidationError is a failed validation promoted to an error by AssertValid.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// AssertValid converts a failed Result into a *ValidationError.
func AssertValid(r Result) error {
	if r.Valid {
		return nil
	}
	reason := r.Reason
	if reason == "" {
		reason = "validation failed"
	}
	return &ValidationError{Reason: reason}
}

// Disposable email domains to block. Extend as new ones show up in signups.
var disposableEmailDomains = map[string]bool{
	"tempmail.com":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"mailinator.com":    true,
	"throwaway.email":   true,
	"temp-mail.org":     true,
	"yopmail.com":       true,
}

var (
	emailRegex       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	tokenRegex       = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	fingerprintRegex = regexp.MustCompile(`^[a-zA-Z0-9+/=]+$`)
	contentIDRegex   = regexp.MustCompile(`^[a-z0-9_-]+$`)
	ipv4Regex        = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)
	ipv6Regex        = regexp.MustCompile(`(?i)^([0-9a-f]{0,4}:){2,7}[0-9a-f]{0,4}$`)
)

// ValidateEmail checks shape, length, whitespace and the disposable-domain
// blacklist. Empty input fails closed.
func ValidateEmail(email string) Result {
	if email == "" {
		return invalid("Email is required")
	}
	if len(email) > 255 {
		return invalid("Email too long")
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return invalid("Email cannot contain whitespace")
	}
	if !emailRegex.MatchString(email) {
		return invalid("Invalid email format")
	}
	parts := strings.Split(email, "@")
	domain := strings.ToLower(parts[len(parts)-1])
	if disposableEmailDomains[domain] {
		return invalid("Disposable email addresses are not allowed")
	}
	return valid()
}

// NormalizeEmail lowercases and trims an address. Run after validation.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateToken checks magic-link and session token format.
func ValidateToken(token string) Result {
	if token == "" {
		return invalid("Token is required")
	}
	if len(token) < 32 {
		return invalid("Token too short")
	}
	if len(token) > 512 {
		return invalid("Token too long")
	}
	if !tokenRegex.MatchString(token) {
		return invalid("Token contains invalid characters")
	}
	return valid()
}

// ValidateDeviceFingerprint checks a client-supplied fingerprint.
func ValidateDeviceFingerprint(fingerprint string) Result {
	if len(fingerprint) < 32 || len(fingerprint) > 128 {
		return invalid("Invalid device fingerprint length")
	}
	if !fingerprintRegex.MatchString(fingerprint) {
		return invalid("Invalid device fingerprint format")
	}
	return valid()
}

// ValidateContentID checks a content identifier (demo, module, workshop...).
func ValidateContentID(contentID string) Result {
	if contentID == "" {
		return invalid("Content ID is required")
	}
	if len(contentID) > 100 {
		return invalid("Content ID too long")
	}
	if !contentIDRegex.MatchString(contentID) {
		return invalid("Content ID contains invalid characters")
	}
	return valid()
}

// SanitizeUserAgent strips control characters and caps the length.
func SanitizeUserAgent(userAgent string) string {
	if userAgent == "" {
		return "Unknown"
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r == '\t' {
			return -1
		}
		return r
	}, userAgent)
	if len(cleaned) > 500 {
		cleaned = cleaned[:500]
	}
	return cleaned
}

// SanitizeIPAddress returns the input when it looks like an IPv4/IPv6
// address and "0.0.0.0" otherwise.
func SanitizeIPAddress(ip string) string {
	if ipv4Regex.MatchString(ip) || ipv6Regex.MatchString(ip) {
		return ip
	}
	// Strip a port if one is attached (RemoteAddr form).
	if host, _, ok := strings.Cut(ip, ":"); ok && ipv4Regex.MatchString(host) {
		return host
	}
	return "0.0.0.0"
}
