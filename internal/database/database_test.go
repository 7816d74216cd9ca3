package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/bitcoinsovereign/academy/internal/config"
	"github.com/bitcoinsovereign/academy/internal/models"
)

type DatabaseTestSuite struct {
	suite.Suite
}

func (s *DatabaseTestSuite) SetupTest() {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(s.T().TempDir(), "academy_test.db")

	err := Init(cfg)
	assert.NoError(s.T(), err, "Database initialization should succeed")
}

func (s *DatabaseTestSuite) TearDownTest() {
	Close()
}

func TestDatabaseTestSuite(t *testing.T) {
	suite.Run(t, new(DatabaseTestSuite))
}

func (s *DatabaseTestSuite) TestMigrationsCreateSchema() {
	for _, table := range []string{"users", "magic_link_requests", "devices", "sessions", "entitlements", "security_events"} {
		n, err := CountRows("SELECT COUNT(*) FROM " + table)
		s.NoError(err, "table %s should exist", table)
		s.Equal(0, n)
	}
}

func (s *DatabaseTestSuite) TestMigrationsAreIdempotent() {
	err := RunMigrations(GetConnection(), "sqlite")
	s.NoError(err, "re-running migrations should be a no-op")
}

func (s *DatabaseTestSuite) TestTransactionCommitAndRollback() {
	now := time.Now()
	err := Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(Rebind(
			`INSERT INTO users (id, email, email_verified, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`),
			"u1", "alice@example.com", true, now, now)
		return err
	})
	s.Require().NoError(err)

	n, err := CountRows(`SELECT COUNT(*) FROM users`)
	s.Require().NoError(err)
	s.Equal(1, n)

	err = Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(Rebind(
			`INSERT INTO users (id, email, email_verified, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`),
			"u2", "bob@example.com", true, now, now); err != nil {
			return err
		}
		return assert.AnError
	})
	s.Error(err)

	n, err = CountRows(`SELECT COUNT(*) FROM users`)
	s.Require().NoError(err)
	s.Equal(1, n, "failed transaction must not leave rows behind")
}

func (s *DatabaseTestSuite) TestSecurityEventRoundTrip() {
	userID := "u1"
	LogSecurityEvent(models.SecurityEvent{
		Type:      models.EventAuthFailure,
		Severity:  models.SeverityMedium,
		UserID:    &userID,
		IPAddress: "192.168.1.10",
		UserAgent: "Mozilla/5.0",
		Metadata:  map[string]interface{}{"endpoint": "verify"},
	})

	events, err := SecurityEventsAfter(time.Now().Add(-time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(models.EventAuthFailure, events[0].Type)
	s.Equal("verify", events[0].Metadata["endpoint"])
}

func (s *DatabaseTestSuite) TestSecurityEventsAfterIsExclusive() {
	LogSecurityEvent(models.SecurityEvent{
		Type:     models.EventAuthFailure,
		Severity: models.SeverityLow,
	})

	events, err := SecurityEventsAfter(time.Now().Add(-time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	// Resuming from the last returned timestamp must not replay that event.
	events, err = SecurityEventsAfter(events[0].CreatedAt, 10)
	s.Require().NoError(err)
	s.Empty(events)
}

func TestRebind(t *testing.T) {
	// Rebind rewrites placeholders whenever the driver is not PostgreSQL.
	assert.Equal(t, "SELECT * FROM users WHERE id = ?", Rebind("SELECT * FROM users WHERE id = $1"))
	assert.Equal(t, "UPDATE t SET a = ?, b = ? WHERE c = ?", Rebind("UPDATE t SET a = $1, b = $2 WHERE c = $3"))
	assert.Equal(t, "VALUES (?, ?, ?)", Rebind("VALUES ($1, $2, $10)"))
	assert.Equal(t, "SELECT 'a$b' FROM t", Rebind("SELECT 'a$b' FROM t"))
}
