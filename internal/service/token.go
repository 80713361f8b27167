package service

import (
	"auth-service/internal/models"
	"auth-service/internal/pkg/log"
	"auth-service/internal/storage"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessClaims — полезная нагрузка access-токена. Помимо идентичности несёт
// версию учётных данных (ver): при валидации она сверяется с живым значением
// в БД, что позволяет отозвать все выданные access-токены одним инкрементом.
type accessClaims struct {
	UserID       string `json:"uid"`
	Role         string `json:"role"`
	TokenVersion int64  `json:"ver"`
	jwt.RegisteredClaims
}

// refreshClaims — полезная нагрузка refresh-токена: владелец и семья ротаций.
// Случайный jti (RegisteredClaims.ID) гарантирует уникальность отпечатка
// даже при повторной генерации в одну и ту же секунду.
type refreshClaims struct {
	UserID   string `json:"uid"`
	FamilyID string `json:"fam"`
	jwt.RegisteredClaims
}

// generateAccessToken генерирует access-токен.
func (s *Service) generateAccessToken(ctx context.Context, user *models.User, now time.Time) (string, error) {
	const op = "service.token.generateAccessToken"

	lg := log.From(ctx)

	claims := accessClaims{
		UserID:       user.ID.String(),
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.AccessSecret))
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// validateAccessToken валидирует access-токен: подпись, алгоритм, срок,
// issuer и audience проверяются атомарно внутри парсера.
func (s *Service) validateAccessToken(tokenStr string) (uuid.UUID, string, int64, error) {
	const op = "service.token.validateAccessToken"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.AccessSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5*time.Second),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, "", 0, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return uuid.Nil, "", 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return uuid.Nil, "", 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", 0, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, claims.Role, claims.TokenVersion, nil
}

// parseRefreshToken проверяет подпись и алгоритм refresh-токена и извлекает
// полезную нагрузку. Срок действия здесь НЕ проверяется: авторитетен
// expires_at записи в БД, и просроченный токен обязан дойти до проверки на
// реюз — иначе истечение маскировало бы предъявление украденного токена.
func (s *Service) parseRefreshToken(tokenStr string) (uuid.UUID, uuid.UUID, error) {
	const op = "service.token.parseRefreshToken"

	token, err := jwt.ParseWithClaims(tokenStr, &refreshClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(s.cfg.RefreshSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*refreshClaims)
	if !ok || !token.Valid {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	fam, err := uuid.Parse(claims.FamilyID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, fam, nil
}

// issueRefreshToken выпускает refresh-токен в заданной семье и сохраняет
// запись с его отпечатком. При коллизии отпечатка (storage.ErrAlreadyExists)
// токен перегенерируется с новым jti — ограниченное число раз.
func (s *Service) issueRefreshToken(ctx context.Context, user *models.User, familyID uuid.UUID, now time.Time) (string, *models.RefreshToken, error) {
	const (
		op          = "service.token.issueRefreshToken"
		maxAttempts = 3
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		claims := refreshClaims{
			UserID:   user.ID.String(),
			FamilyID: familyID.String(),
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.RefreshTokenTTL)),
				IssuedAt:  jwt.NewNumericDate(now),
				Issuer:    s.cfg.Issuer,
				Subject:   user.ID.String(),
			},
		}

		plain, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.RefreshSecret))
		if err != nil {
			lg.Error("refresh_token_sign_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", nil, fmt.Errorf("%s: %w", op, err)
		}

		record := &models.RefreshToken{
			ID:        uuid.New(),
			TokenHash: hashToken(plain),
			UserID:    user.ID,
			FamilyID:  familyID,
			Revoked:   false,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
			CreatedAt: now,
		}

		if err := s.storage.SaveRefreshToken(ctx, record); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редчайшая коллизия отпечатка — пробуем с новым jti.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", nil, fmt.Errorf("%s: %w", op, err)
		}

		return plain, record, nil
	}

	lg.Error("refresh_collision_exceeded",
		slog.String("op", op),
	)

	return "", nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// hashToken вычисляет отпечаток сырого токена: SHA-256 → base64url.
// Односторонняя детерминированная функция; используется только как ключ
// хранения и никогда — как самостоятельное доказательство авторизации.
func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
