package service

import (
	"auth-service/internal/models"
	"auth-service/internal/storage"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"auth-service/mocks"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := testUser("user@example.com")
	user.Role = "ADMIN"
	user.TokenVersion = 7

	at, err := svc.generateAccessToken(context.Background(), user, time.Now().UTC())
	require.NoError(t, err)

	uid, role, ver, err := svc.validateAccessToken(at)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.Equal(t, "ADMIN", role)
	require.EqualValues(t, 7, ver)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	cfg := testCfg()
	cfg.AccessSecret = "another-secret"
	other := New(st, cfg)

	at, err := other.generateAccessToken(context.Background(), testUser("u@e.com"), time.Now().UTC())
	require.NoError(t, err)

	_, _, _, err = svc.validateAccessToken(at)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessToken_WrongIssuerOrAudience(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	cfg := testCfg()
	cfg.Issuer = "someone-else"
	other := New(st, cfg)

	at, err := other.generateAccessToken(context.Background(), testUser("u@e.com"), time.Now().UTC())
	require.NoError(t, err)
	_, _, _, err = svc.validateAccessToken(at)
	require.ErrorIs(t, err, ErrInvalidToken)

	cfg = testCfg()
	cfg.Audience = []string{"other-api"}
	other = New(st, cfg)

	at, err = other.generateAccessToken(context.Background(), testUser("u@e.com"), time.Now().UTC())
	require.NoError(t, err)
	_, _, _, err = svc.validateAccessToken(at)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessToken_WrongAlg(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	// alg=none отклоняется до каких-либо проверок полезной нагрузки.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"uid": uuid.NewString(),
		"iss": svc.cfg.Issuer,
		"aud": svc.cfg.Audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, _, err = svc.validateAccessToken(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessToken_Expired(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	cfg := testCfg()
	cfg.AccessTokenTTL = -time.Minute
	expired := New(st, cfg)

	at, err := expired.generateAccessToken(context.Background(), testUser("u@e.com"), time.Now().UTC())
	require.NoError(t, err)

	_, _, _, err = svc.validateAccessToken(at)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefreshToken_ParseRoundTrip(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := testUser("user@example.com")
	fam := uuid.New()
	plain, _ := mintRefresh(t, svc, st, user, fam)

	uid, gotFam, err := svc.parseRefreshToken(plain)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.Equal(t, fam, gotFam)
}

// Подпись проверяется, срок — нет: авторитетен expires_at записи в БД,
// и просроченный токен обязан дойти до проверки на реюз.
func TestRefreshToken_ExpiredStillParses(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	cfg := testCfg()
	cfg.RefreshTokenTTL = -time.Hour
	expired := New(st, cfg)

	user := testUser("user@example.com")
	fam := uuid.New()
	plain, _ := mintRefresh(t, expired, st, user, fam)

	uid, gotFam, err := svc.parseRefreshToken(plain)
	require.NoError(t, err)
	require.Equal(t, user.ID, uid)
	require.Equal(t, fam, gotFam)
}

func TestRefreshToken_ParseRejectsGarbageAndWrongKey(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, _, err := svc.parseRefreshToken("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)

	// Access-токен, подписанный access-секретом, не проходит как refresh.
	at, err := svc.generateAccessToken(context.Background(), testUser("u@e.com"), time.Now().UTC())
	require.NoError(t, err)
	_, _, err = svc.parseRefreshToken(at)
	require.ErrorIs(t, err, ErrInvalidToken)

	cfg := testCfg()
	cfg.RefreshSecret = "stranger-secret"
	other := New(st, cfg)
	plain, _ := mintRefresh(t, other, st, testUser("u@e.com"), uuid.New())
	_, _, err = svc.parseRefreshToken(plain)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	h1 := hashToken("token-a")
	h2 := hashToken("token-a")
	h3 := hashToken("token-b")

	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, h3)
	// SHA-256 в base64url без паддинга: 43 символа.
	require.Len(t, h1, 43)
}

func TestIssueRefreshToken_CollisionRetry(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg())

	user := testUser("user@example.com")
	fam := uuid.New()

	// Две коллизии отпечатка, затем успех: каждый повтор получает новый jti,
	// поэтому отпечатки попыток различаются.
	hashes := map[string]struct{}{}
	gomock.InOrder(
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r *models.RefreshToken) error {
				hashes[r.TokenHash] = struct{}{}
				return storage.ErrAlreadyExists
			}),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r *models.RefreshToken) error {
				hashes[r.TokenHash] = struct{}{}
				return storage.ErrAlreadyExists
			}),
		st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, r *models.RefreshToken) error {
				hashes[r.TokenHash] = struct{}{}
				return nil
			}),
	)

	plain, record, err := svc.issueRefreshToken(context.Background(), user, fam, time.Now().UTC())
	require.NoError(t, err)
	require.NotEmpty(t, plain)
	require.Equal(t, fam, record.FamilyID)
	require.Len(t, hashes, 3)
}

func TestIssueRefreshToken_CollisionExhausted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg())

	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
		Return(storage.ErrAlreadyExists).Times(3)

	_, _, err := svc.issueRefreshToken(context.Background(), testUser("u@e.com"), uuid.New(), time.Now().UTC())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRefreshTokenCollision)
}
