// Package models содержит доменные сущности user-intake.
package models

import "time"

// UserRecord — запись о пользователе, которую сервис один раз пишет в документное хранилище.
// Важно:
//   - ID — UUIDv4 строкой, выдаётся сервисом при создании;
//   - UserName/UserEmail непустые (после TrimSpace), иначе запись не создаётся;
//   - Timestamp — момент создания в UTC.
//
// После записи сервис запись не меняет и не удаляет.
type UserRecord struct {
	ID        string    `json:"id"`
	UserName  string    `json:"userName"`
	UserEmail string    `json:"userEmail"`
	Timestamp time.Time `json:"timestamp"`
}

// Principal — аутентифицированный вызывающий (из claims bearer-токена).
type Principal struct {
	Subject string
	Issuer  string
}
