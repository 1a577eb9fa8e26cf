package services

import (
	"errors"
	"fmt"

	"github.com/devxaves/lifeline-protocol/internal/repository"
)

// Kind - стабильный тег класса ошибки, передается клиенту как есть.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindForbidden    Kind = "forbidden"
	KindInvalidState Kind = "invalid_state"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// Error - ошибка сервисного слоя с тегом класса.
type Error struct {
	Kind    Kind
	Message string
	Err     error // Исходная ошибка, если есть
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по классу, поэтому errors.Is(err, ErrNotFound) работает для любой ошибки этого класса.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Сентинелы классов для errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrUnavailable  = &Error{Kind: KindUnavailable}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf возвращает класс ошибки; неклассифицированные ошибки считаются внутренними.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// fromRepo переводит ошибки хранилища в классы сервисного слоя.
func fromRepo(err error, owner string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrVaultNotFound):
		return &Error{Kind: KindNotFound, Message: fmt.Sprintf("хранилище '%s' не найдено", owner), Err: err}
	case errors.Is(err, repository.ErrVaultExists):
		return &Error{Kind: KindConflict, Message: fmt.Sprintf("у владельца '%s' уже есть хранилище", owner), Err: err}
	case errors.Is(err, repository.ErrUnavailable):
		return &Error{Kind: KindUnavailable, Message: "хранилище данных временно недоступно", Err: err}
	default:
		return &Error{Kind: KindInternal, Message: "внутренняя ошибка сервера", Err: err}
	}
}
