package authorization

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tgsticker_back/database"
)

func newTestService(t *testing.T) *AuthService {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	require.NoError(t, db.AutoMigrate(&User{}))
	return &AuthService{users: &UserStore{db: db}}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "s3cret-pass", "Alice")
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, RoleUser, user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))

	authed, err := service.Authenticate(ctx, "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)
	assert.Equal(t, "alice", authed.Username)

	_, err = service.Authenticate(ctx, "alice", "wrong-pass")
	assert.ErrorIs(t, err, jwt.ErrFailedAuthentication)

	_, err = service.Authenticate(ctx, "nobody", "s3cret-pass")
	assert.ErrorIs(t, err, jwt.ErrFailedAuthentication)
}

func TestRegisterDefaultsDisplayNameToUsername(t *testing.T) {
	service := newTestService(t)

	user, err := service.Register(context.Background(), "bob", "longenough", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", user.DisplayName)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	service := newTestService(t)

	_, err := service.Register(context.Background(), "carol", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegisterRejectsMissingValues(t *testing.T) {
	service := newTestService(t)

	_, err := service.Register(context.Background(), "   ", "longenough", "")
	assert.ErrorIs(t, err, jwt.ErrMissingLoginValues)

	_, err = service.Register(context.Background(), "dave", "   ", "")
	assert.ErrorIs(t, err, jwt.ErrMissingLoginValues)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.Register(ctx, "erin", "longenough", "")
	require.NoError(t, err)

	_, err = service.Register(ctx, "erin", "otherpassword", "")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestExtractUserIDClaimShapes(t *testing.T) {
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   uint64
	}{
		{name: "nil claims", claims: nil, want: 0},
		{name: "missing key", claims: jwt.MapClaims{}, want: 0},
		{name: "float64", claims: jwt.MapClaims{identityKey: float64(42)}, want: 42},
		{name: "int", claims: jwt.MapClaims{identityKey: 7}, want: 7},
		{name: "uint64", claims: jwt.MapClaims{identityKey: uint64(11)}, want: 11},
		{name: "json number", claims: jwt.MapClaims{identityKey: json.Number("99")}, want: 99},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractUserID(tc.claims))
		})
	}
}

func TestCaptchaIssueAndVerify(t *testing.T) {
	store := NewCaptchaStore(0)

	challenge := store.Issue()
	require.NotEmpty(t, challenge.ID)
	require.NotEmpty(t, challenge.ImageBase64)
	assert.True(t, challenge.ExpiresAt.After(time.Now()))

	assert.False(t, store.Verify(challenge.ID, "definitely wrong"))
	assert.False(t, store.Verify("", ""))
}
