package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/qcom/accounts/internal/config"
	"github.com/qcom/accounts/internal/models"
	"github.com/qcom/accounts/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sequenceGenerator struct {
	mu    sync.Mutex
	codes []string
}

func (g *sequenceGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code := g.codes[0]
	g.codes = g.codes[1:]
	return code, nil
}

// memoryOTPStore mirrors the persistent stores: FindOne skips consumed rows
// but still returns expired ones until they are deleted.
type memoryOTPStore struct {
	mu      sync.Mutex
	records map[string]*models.OTPRecord
	err     error
}

func newMemoryOTPStore() *memoryOTPStore {
	return &memoryOTPStore{records: make(map[string]*models.OTPRecord)}
}

func (s *memoryOTPStore) Create(ctx context.Context, otp *models.OTPRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	copied := *otp
	s.records[otp.ID] = &copied
	return nil
}

func (s *memoryOTPStore) FindOne(ctx context.Context, userID, code string, purpose models.OTPPurpose) (*models.OTPRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, r := range s.records {
		if r.UserID == userID && r.Code == code && r.Purpose == purpose && !r.Consumed {
			copied := *r
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryOTPStore) DeleteMany(ctx context.Context, userID string, purpose models.OTPPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for id, r := range s.records {
		if r.UserID == userID && r.Purpose == purpose {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *memoryOTPStore) DeleteOne(ctx context.Context, userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	r, ok := s.records[id]
	if !ok || r.UserID != userID {
		return false, nil
	}
	delete(s.records, id)
	return true, nil
}

func (s *memoryOTPStore) DeleteAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for id, r := range s.records {
		if r.UserID == userID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *memoryOTPStore) forUser(userID string, purpose models.OTPPurpose) []*models.OTPRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.OTPRecord
	for _, r := range s.records {
		if r.UserID == userID && r.Purpose == purpose {
			out = append(out, r)
		}
	}
	return out
}

type sentOTP struct {
	Address     string
	Code        string
	DisplayName string
	Purpose     models.OTPPurpose
}

type recordingNotifier struct {
	mu       sync.Mutex
	otps     []sentOTP
	welcomes []string
	err      error
}

func (n *recordingNotifier) DeliverOTP(ctx context.Context, address, code, displayName string, purpose models.OTPPurpose) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.otps = append(n.otps, sentOTP{Address: address, Code: code, DisplayName: displayName, Purpose: purpose})
	return nil
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, address, displayName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.welcomes = append(n.welcomes, address)
	return nil
}

func (n *recordingNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.otps, "no OTP delivered")
	return n.otps[len(n.otps)-1].Code
}

type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*models.User)}
}

func (s *memoryUserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *memoryUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	email = models.NormalizeEmail(email)
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, u := range s.users {
		if u.Email == models.NormalizeEmail(user.Email) {
			return repository.ErrUserExists
		}
	}
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *memoryUserStore) update(userID string, fn func(u *models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (s *memoryUserStore) UpdateProfile(ctx context.Context, user *models.User) error {
	return s.update(user.ID, func(u *models.User) {
		u.Name = user.Name
		u.PhoneNumber = user.PhoneNumber
	})
}

func (s *memoryUserStore) SetEmailVerified(ctx context.Context, userID string, verified bool) error {
	return s.update(userID, func(u *models.User) { u.IsEmailVerified = verified })
}

func (s *memoryUserStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return s.update(userID, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (s *memoryUserStore) UpdateRole(ctx context.Context, userID string, role models.Role) error {
	return s.update(userID, func(u *models.User) { u.Role = role })
}

func (s *memoryUserStore) Delete(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	delete(s.users, user.ID)
	return nil
}

func newTestJWTService(t *testing.T) *JWTService {
	t.Helper()
	svc, err := NewJWTService(&config.JWTConfig{
		SecretKey:     testSecret,
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
	}, testLogger())
	require.NoError(t, err)
	return svc
}

func newTestRefreshTokenService(t *testing.T) (*RefreshTokenService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRefreshTokenService(client, testLogger()), mr
}
