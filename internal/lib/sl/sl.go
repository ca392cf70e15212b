// Package sl содержит вспомогательные функции для работы с логгером slog.
// Цель: упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках и операциях.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Для nil-ошибки возвращается пустая строка, чтобы вызов в defer-ветках был безопасен.
//
// Пример:
//
//	log.Error("failed to cancel appointment", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op возвращает атрибут с именем операции.
func Op(op string) slog.Attr {
	return slog.String("op", op)
}
