package auth

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/bitcoinsovereign/academy/internal/config"
	"github.com/bitcoinsovereign/academy/internal/database"
)

// captureNotifier records outgoing magic-link emails instead of sending them.
type captureNotifier struct {
	emails []string
	tokens []string
	fail   bool
}

func (n *captureNotifier) SendMagicLinkEmail(email, token string, expiresIn time.Duration) error {
	if n.fail {
		return assert.AnError
	}
	n.emails = append(n.emails, email)
	n.tokens = append(n.tokens, token)
	return nil
}

type MagicLinkTestSuite struct {
	suite.Suite
	notifier *captureNotifier
}

func (s *MagicLinkTestSuite) SetupTest() {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(s.T().TempDir(), "academy_test.db")

	err := database.Init(cfg)
	assert.NoError(s.T(), err, "Database initialization should succeed")

	s.notifier = &captureNotifier{}
}

func (s *MagicLinkTestSuite) TearDownTest() {
	database.Close()
}

func TestMagicLinkTestSuite(t *testing.T) {
	suite.Run(t, new(MagicLinkTestSuite))
}

const testFingerprint = "dGVzdGZpbmdlcnByaW50MTIzNDU2Nzg5MGFiY2RlZg=="

func (s *MagicLinkTestSuite) login(email string) *VerifyResult {
	err := RequestMagicLink(s.notifier, email, "192.168.1.10")
	s.Require().NoError(err)
	s.Require().NotEmpty(s.notifier.tokens)

	token := s.notifier.tokens[len(s.notifier.tokens)-1]
	result, err := VerifyMagicLink(token, testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.Require().NoError(err)
	return result
}

func (s *MagicLinkTestSuite) TestRequestCreatesUserAndStoresHash() {
	err := RequestMagicLink(s.notifier, "Alice@Example.COM", "192.168.1.10")
	s.Require().NoError(err)

	// Address is normalized and only the token hash is persisted.
	s.Equal([]string{"alice@example.com"}, s.notifier.emails)
	token := s.notifier.tokens[0]

	var storedHash string
	err = database.QueryOne(
		`SELECT magic_link_token FROM users WHERE email = $1`,
		[]interface{}{"alice@example.com"}, &storedHash,
	)
	s.Require().NoError(err)
	s.Equal(HashToken(token), storedHash)
	s.NotEqual(token, storedHash)
}

func (s *MagicLinkTestSuite) TestRequestRejectsInvalidEmail() {
	err := RequestMagicLink(s.notifier, "not-an-email", "192.168.1.10")

	var vErr *ValidationError
	s.ErrorAs(err, &vErr)
	s.Empty(s.notifier.emails)
}

func (s *MagicLinkTestSuite) TestRequestQuota() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	}

	err := RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10")
	s.ErrorIs(err, ErrTooManyLinkRequests)

	// The quota is per address.
	s.NoError(RequestMagicLink(s.notifier, "bob@example.com", "192.168.1.10"))
}

func (s *MagicLinkTestSuite) TestRequestSurvivesEmailFailure() {
	s.notifier.fail = true
	err := RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10")

	// The token is persisted before sending; delivery failure is not fatal.
	s.NoError(err)

	var count int
	s.Require().NoError(database.QueryOne(
		`SELECT COUNT(*) FROM users WHERE email = $1 AND magic_link_token IS NOT NULL`,
		[]interface{}{"alice@example.com"}, &count,
	))
	s.Equal(1, count)
}

func (s *MagicLinkTestSuite) TestVerifySuccess() {
	result := s.login("alice@example.com")

	s.Equal("alice@example.com", result.User.Email)
	s.True(result.User.EmailVerified)
	s.NotEmpty(result.DeviceID)
	s.NotEmpty(result.SessionToken)

	session, err := ValidateSession(result.SessionToken)
	s.Require().NoError(err)
	s.Equal(result.User.ID, session.UserID)
	s.Equal(result.DeviceID, session.DeviceID)

	device, err := ActiveDevice(result.User.ID)
	s.Require().NoError(err)
	s.Require().NotNil(device)
	s.Equal(result.DeviceID, device.ID)
}

func (s *MagicLinkTestSuite) TestVerifyIsSingleUse() {
	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	token := s.notifier.tokens[0]

	_, err := VerifyMagicLink(token, testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.Require().NoError(err)

	_, err = VerifyMagicLink(token, testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.ErrorIs(err, ErrLinkNotFound)
}

func (s *MagicLinkTestSuite) TestVerifySupersededLinkIsRejected() {
	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	old := s.notifier.tokens[0]

	// Requesting a fresh link replaces the stored hash; the earlier link is
	// dead even though it has not expired.
	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))

	_, err := VerifyMagicLink(old, testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.ErrorIs(err, ErrLinkNotFound)

	_, err = VerifyMagicLink(s.notifier.tokens[1], testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.NoError(err)
}

func (s *MagicLinkTestSuite) TestVerifyUnknownToken() {
	_, err := VerifyMagicLink(strings.Repeat("x", 43), testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.ErrorIs(err, ErrLinkNotFound)
}

func (s *MagicLinkTestSuite) TestVerifyExpiredToken() {
	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	token := s.notifier.tokens[0]

	_, err := database.Exec(
		`UPDATE users SET magic_link_expires = $1 WHERE email = $2`,
		time.Now().Add(-time.Minute), "alice@example.com",
	)
	s.Require().NoError(err)

	_, err = VerifyMagicLink(token, testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.ErrorIs(err, ErrLinkExpired)
}

func (s *MagicLinkTestSuite) TestVerifyGeneratesFingerprintWhenMissing() {
	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))

	result, err := VerifyMagicLink(s.notifier.tokens[0], "", "192.168.1.10", "Mozilla/5.0")
	s.Require().NoError(err)
	s.NotEmpty(result.DeviceID)
}

func (s *MagicLinkTestSuite) TestSecondDeviceDeactivatesFirst() {
	first := s.login("alice@example.com")

	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	otherFingerprint := strings.Repeat("b", 44)
	second, err := VerifyMagicLink(s.notifier.tokens[len(s.notifier.tokens)-1], otherFingerprint, "10.0.0.2", "Mozilla/5.0")
	s.Require().NoError(err)
	s.NotEqual(first.DeviceID, second.DeviceID)

	device, err := ActiveDevice(first.User.ID)
	s.Require().NoError(err)
	s.Require().NotNil(device)
	s.Equal(second.DeviceID, device.ID, "only the most recent device stays active")
}

func (s *MagicLinkTestSuite) TestReturningDeviceKeepsSingleActive() {
	first := s.login("alice@example.com")

	// Log in from a second device, then come back to the first.
	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	_, err := VerifyMagicLink(s.notifier.tokens[len(s.notifier.tokens)-1], strings.Repeat("b", 44), "10.0.0.2", "Mozilla/5.0")
	s.Require().NoError(err)

	s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	back, err := VerifyMagicLink(s.notifier.tokens[len(s.notifier.tokens)-1], testFingerprint, "192.168.1.10", "Mozilla/5.0")
	s.Require().NoError(err)
	s.Equal(first.DeviceID, back.DeviceID, "the same fingerprint maps to the same device row")

	count, err := database.CountRows(
		`SELECT COUNT(*) FROM devices WHERE user_id = $1 AND is_active = $2`,
		first.User.ID, true,
	)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *MagicLinkTestSuite) TestSessionLifecycle() {
	result := s.login("alice@example.com")

	s.Require().NoError(DeleteSession(result.SessionToken))
	_, err := ValidateSession(result.SessionToken)
	s.ErrorIs(err, ErrSessionNotFound)

	s.ErrorIs(DeleteSession(result.SessionToken), ErrSessionNotFound)
}

func (s *MagicLinkTestSuite) TestExpiredSessionIsRejectedAndCleaned() {
	result := s.login("alice@example.com")

	_, err := database.Exec(
		`UPDATE sessions SET expires_at = $1 WHERE token_hash = $2`,
		time.Now().Add(-time.Minute), HashToken(result.SessionToken),
	)
	s.Require().NoError(err)

	_, err = ValidateSession(result.SessionToken)
	s.ErrorIs(err, ErrSessionExpired)

	s.Require().NoError(CleanupExpiredSessions())
	_, err = ValidateSession(result.SessionToken)
	s.ErrorIs(err, ErrSessionNotFound)
}

func (s *MagicLinkTestSuite) TestCleanupExpiredLinkRequests() {
	for i := 0; i < 3; i++ {
		s.Require().NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
	}
	s.ErrorIs(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"), ErrTooManyLinkRequests)

	// Age the counter rows out of the window; the quota resets.
	_, err := database.Exec(
		`UPDATE magic_link_requests SET expires_at = $1`,
		time.Now().Add(-time.Minute),
	)
	s.Require().NoError(err)
	s.Require().NoError(CleanupExpiredLinkRequests())

	s.NoError(RequestMagicLink(s.notifier, "alice@example.com", "192.168.1.10"))
}
