package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
)

// Коды ошибок PostgreSQL.
const (
	pgUniqueViolationCode = "23505"
)

// Кастомные ошибки репозитория.
var (
	ErrVaultNotFound   = errors.New("хранилище не найдено")
	ErrVaultExists     = errors.New("у владельца уже есть хранилище")
	ErrVersionConflict = errors.New("хранилище было изменено параллельным запросом")
	ErrUnavailable     = errors.New("хранилище данных недоступно")
)

// wrapConnErr помечает ошибки соединения как ErrUnavailable, остальные возвращает как есть.
func wrapConnErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
