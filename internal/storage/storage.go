package storage

import (
	"auth-service/internal/models"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/отпечаток refresh-токена).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// IncrementTokenVersion атомарно увеличивает счётчик версий учётных
	// данных пользователя и возвращает новое значение. Конкурентные вызовы
	// для одного пользователя не теряют инкременты.
	IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int64, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новую запись refresh-токена в БД.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит запись по отпечатку токена.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RevokeRefreshToken пытается отозвать ровно одну запись.
	// Возвращает:
	//	(true, nil)  — запись была активна и отозвана сейчас;
	//	(false, nil) — запись существует, но уже была отозвана;
	//	(false, ErrNotFound) — запись не найдена.
	RevokeRefreshToken(ctx context.Context, id uuid.UUID) (bool, error)
	// RevokeFamily идемпотентно отзывает все записи семьи независимо от их
	// текущего состояния. Отсутствие записей ошибкой не считается.
	RevokeFamily(ctx context.Context, familyID uuid.UUID) error
	// DeleteExpiredTokens удаляет все просроченные записи. Обслуживающая
	// операция: безопасность обеспечивается отзывом, а не удалением.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	Close()
}
