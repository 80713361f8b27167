package service

import (
	"auth-service/internal/cache"
	"auth-service/internal/models"
	"auth-service/internal/pkg/log"
	"auth-service/internal/pkg/redact"
	"auth-service/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// defaultRole назначается при регистрации; повышение роли — вне этого сервиса.
const defaultRole = "USER"

// RegisterUser регистрирует нового пользователя и открывает первую сессию.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hashedPassword,
		Role:         defaultRole,
		TokenVersion: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user, uuid.Nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// LoginUser выполняет вход по email+пароль и открывает новую сессию:
// свежая семья refresh-токенов, новая пара токенов.
// Несуществующий пользователь и неверный пароль дают одинаковую ошибку.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*models.TokenPair, *models.User, error) {
	const op = "service.auth.LoginUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(password) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !checkPassword(user.PasswordHash, password) {
		log.From(ctx).Warn("login_failed",
			slog.String("op", op),
			slog.String("email", redact.Email(normEmail)),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.issueTokenPair(ctx, user, uuid.Nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user, nil
}

// RefreshToken ротирует refresh-токен: отзывает предъявленный и выпускает
// новую пару в той же семье. Порядок проверок фиксирован и важен:
//
//  1. подпись (любой дефект → ErrInvalidToken, без уточнения причины);
//  2. поиск записи по отпечатку (отсутствие неотличимо от подделки);
//  3. реюз — ДО проверки срока: предъявление уже отозванной записи означает
//     кражу либо гонку клиента, политика одинакова — отзыв всей семьи и
//     инкремент token_version владельца ещё до возврата ошибки;
//  4. срок записи (штатный таймаут, без каскадных действий);
//  5. ротация: отзыв текущей записи, свежее чтение пользователя
//     (роль/версия берутся из БД, не из старого токена), выпуск новой пары.
func (s *Service) RefreshToken(ctx context.Context, plain string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RefreshToken"

	lg := log.From(ctx)

	if _, _, err := s.parseRefreshToken(plain); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := hashToken(plain)

	// Fast-path: кэш авторитетен только для revoked=true (запись появляется
	// строго после коммита отзыва в БД) — повтор мёртвого токена отбивается
	// без чтения PostgreSQL. Ошибки кэша не фатальны.
	if s.rcache != nil {
		if entry, ok, err := s.rcache.Get(ctx, hash); err == nil && ok && entry.Revoked {
			return nil, uuid.Nil, s.containBreach(ctx, op, entry.UserID, entry.FamilyID, hash)
		}
	}

	record, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
			)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if record.Revoked {
		return nil, uuid.Nil, s.containBreach(ctx, op, record.UserID, record.FamilyID, hash)
	}

	if time.Now().UTC().After(record.ExpiresAt) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", record.UserID.String()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	revokedNow, err := s.storage.RevokeRefreshToken(ctx, record.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	if !revokedNow {
		// Параллельная ротация успела первой: та же запись предъявлена
		// дважды. Гонка разрешается в сторону отказа — как реюз.
		return nil, uuid.Nil, s.containBreach(ctx, op, record.UserID, record.FamilyID, hash)
	}

	if s.rcache != nil {
		if err := s.rcache.MarkRevoked(ctx, hash); err != nil {
			lg.Warn("rcache_mark_revoked_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	user, err := s.storage.UserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user, record.FamilyID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return pair, user.ID, nil
}

// RevokeToken отзывает одну запись refresh-токена (logout текущей сессии).
func (s *Service) RevokeToken(ctx context.Context, plain string) error {
	const op = "service.auth.RevokeToken"

	if _, _, err := s.parseRefreshToken(plain); err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	hash := hashToken(plain)

	record, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	revokedNow, err := s.storage.RevokeRefreshToken(ctx, record.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		_ = s.rcache.MarkRevoked(ctx, hash)
	}

	if !revokedNow {
		return fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return nil
}

// ValidateToken проверяет access-токен и возвращает контекст пользователя.
// Помимо подписи и срока сверяет версию учётных данных из токена с живым
// значением в БД: токен, выпущенный до инкремента, отклоняется даже будучи
// криптографически валидным.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (uuid.UUID, string, error) {
	const op = "service.auth.ValidateToken"

	uid, role, version, err := s.validateAccessToken(accessToken)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.UserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if user.TokenVersion != version {
		log.From(ctx).Warn("access_token_version_mismatch",
			slog.String("op", op),
			slog.String("user_id", uid.String()),
			slog.Int64("token_ver", version),
			slog.Int64("current_ver", user.TokenVersion),
		)
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	return uid, role, nil
}

// containBreach — реакция на реюз refresh-токена: отзыв всей семьи и
// инкремент token_version владельца (инвалидация всех access-токенов на всех
// устройствах). Мутации выполняются ДО возврата ошибки: даже если вызывающий
// проигнорирует результат, компрометация уже локализована. Ошибки хранилища
// пропагируются как есть — операция считается незавершённой.
func (s *Service) containBreach(ctx context.Context, op string, userID, familyID uuid.UUID, hash string) error {
	lg := log.From(ctx)

	lg.Warn("refresh_reuse_detected",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("family_id", familyID.String()),
	)

	if err := s.storage.RevokeFamily(ctx, familyID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	newVersion, err := s.storage.IncrementTokenVersion(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		_ = s.rcache.MarkRevoked(ctx, hash)
	}

	lg.Warn("token_family_revoked",
		slog.String("op", op),
		slog.String("family_id", familyID.String()),
		slog.Int64("token_version", newVersion),
	)

	return fmt.Errorf("%s: %w", op, ErrReuseDetected)
}

// issueTokenPair выпускает новую пару access+refresh токенов.
// familyID == uuid.Nil означает новую сессию: семья создаётся заново.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User, familyID uuid.UUID) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	if familyID == uuid.Nil {
		familyID = uuid.New()
	}

	accessToken, err := s.generateAccessToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, record, err := s.issueRefreshToken(ctx, user, familyID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		entry := &cache.RefreshEntry{
			ID:        record.ID,
			UserID:    record.UserID,
			FamilyID:  record.FamilyID,
			Revoked:   false,
			ExpiresAt: record.ExpiresAt,
		}
		if err := s.rcache.Set(ctx, record.TokenHash, entry, time.Until(record.ExpiresAt)); err != nil {
			log.From(ctx).Warn("rcache_set_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// checkPassword сравнивает пароль с хэшем.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
