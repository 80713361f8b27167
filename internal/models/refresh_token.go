package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверная запись о выданном refresh-токене.
//
// Сырой токен никогда не сохраняется: в БД лежит только его SHA-256
// отпечаток (TokenHash). FamilyID объединяет всю цепочку ротаций одного
// логина и неизменен после создания записи. Revoked после установки в true
// не сбрасывается. В каждый момент времени в семье активна максимум одна
// запись (revoked=false и срок не истёк).
type RefreshToken struct {
	ID        uuid.UUID
	TokenHash string
	UserID    uuid.UUID
	FamilyID  uuid.UUID
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
