package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timesheet-engine/auth"
	"github.com/warp/timesheet-engine/timesheet"
)

const secret = "0123456789abcdef0123456789abcdef"

var coordinator = timesheet.Principal{
	UserID: "u-1", Email: "coord@example.com", Role: timesheet.RoleCoordinator, AreaID: "area-a",
}

func newService(t *testing.T) *auth.Service {
	t.Helper()
	s, err := auth.NewService(auth.Config{SecretKey: secret, Duration: time.Hour})
	require.NoError(t, err)
	return s
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	_, err := auth.NewService(auth.Config{Duration: time.Hour})
	assert.ErrorIs(t, err, auth.ErrEmptySecretKey)

	_, err = auth.NewService(auth.Config{SecretKey: "short", Duration: time.Hour})
	assert.ErrorIs(t, err, auth.ErrWeakSecretKey)

	_, err = auth.NewService(auth.Config{SecretKey: secret})
	assert.ErrorIs(t, err, auth.ErrInvalidDuration)
}

func TestService_RoundTripsPrincipal(t *testing.T) {
	s := newService(t)

	token, expires, err := s.GenerateToken(coordinator)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "COORDINADOR", claims.Role)
	assert.Equal(t, "u-1", claims.Subject)

	p, err := s.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, coordinator, p)
}

func TestService_RejectsExpiredAndTampered(t *testing.T) {
	issued := time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC)
	s := newService(t).WithClock(func() time.Time { return issued })
	token, _, err := s.GenerateToken(coordinator)
	require.NoError(t, err)

	// Two hours later the one-hour token is expired
	s.WithClock(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = s.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	s.WithClock(func() time.Time { return issued })
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	_, err = s.ValidateToken(parts[0] + "." + parts[1] + ".AAAA")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = s.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestService_RejectsOtherSecret(t *testing.T) {
	other, err := auth.NewService(auth.Config{SecretKey: strings.Repeat("x", 32), Duration: time.Hour})
	require.NoError(t, err)
	token, _, err := other.GenerateToken(coordinator)
	require.NoError(t, err)

	_, err = newService(t).ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestService_UnknownRoleIsInvalid(t *testing.T) {
	s := newService(t)
	claims := &auth.Claims{
		UserID: "u-1",
		Role:   "SUPERUSER",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "timesheet-engine",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = s.Authenticate(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := auth.PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := auth.WithPrincipal(context.Background(), coordinator)
	p, ok := auth.PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, coordinator, p)
}
