// Package apperr описывает таксономию ошибок бизнес-уровня.
//
// Сервисы возвращают *Error с видом ошибки (Kind), HTTP-слой по виду
// выбирает код ответа: валидация даёт 400, не найдено 404, остальное 500.
package apperr

import (
	"errors"
	"fmt"
)

// Kind вид ошибки.
type Kind int

const (
	// KindInternal непредвиденная ошибка.
	KindInternal Kind = iota
	// KindValidation некорректный ввод или нарушение бизнес-правила.
	KindValidation
	// KindNotFound ресурс не найден.
	KindNotFound
	// KindUnauthorized пользователь не аутентифицирован.
	KindUnauthorized
	// KindForbidden недостаточно прав.
	KindForbidden
	// KindExternal ошибка внешнего сервиса (платёжный шлюз).
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error ошибка приложения с видом и человекочитаемым сообщением.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation создаёт ошибку валидации.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound создаёт ошибку "не найдено".
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized создаёт ошибку аутентификации.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// Forbidden создаёт ошибку доступа.
func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Internal оборачивает непредвиденную ошибку.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// External оборачивает ошибку внешнего сервиса.
func External(msg string, err error) *Error {
	return &Error{Kind: KindExternal, Message: msg, Err: err}
}

// KindOf возвращает вид ошибки, для прочих ошибок KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf возвращает сообщение для клиента.
// Для внутренних и внешних ошибок детали не раскрываются.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindInternal, KindExternal:
			return "internal server error"
		default:
			return e.Message
		}
	}
	return "internal server error"
}

// IsNotFound сообщает, является ли ошибка ошибкой "не найдено".
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}
