package models

import (
	"time"

	"github.com/google/uuid"
)

// User — модель пользователя в системе.
//
// TokenVersion — счётчик версий учётных данных: встраивается в каждый
// access-токен и сверяется с БД при валидации. Только увеличивается;
// инкремент происходит при обнаружении реюза refresh-токена
// («разлогинить везде»). Новые пользователи начинают с версии 1.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	TokenVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
