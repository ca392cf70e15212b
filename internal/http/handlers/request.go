// Package handlers содержит общие для HTTP-обработчиков функции разбора запроса.
// Сами обработчики разложены по подпакетам ресурсов.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/beauty-clinic/internal/http/middlewarectx"
	"github.com/magabrotheeeer/beauty-clinic/internal/http/response"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

// Logger добавляет к логгеру op и request_id запроса.
func Logger(log *slog.Logger, r *http.Request, op string) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// Actor достаёт пользователя из контекста или отвечает 401.
func Actor(w http.ResponseWriter, r *http.Request, log *slog.Logger) (models.Actor, bool) {
	actor, ok := middlewarectx.ActorFrom(r.Context())
	if !ok {
		log.Error("actor not found in context")
		response.Fail(w, r, http.StatusUnauthorized, "unauthorized")
		return models.Actor{}, false
	}
	return actor, true
}

// ID разбирает положительный числовой параметр пути или отвечает 400.
func ID(w http.ResponseWriter, r *http.Request, log *slog.Logger, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		log.Info("invalid path parameter", slog.String(name, raw))
		response.Fail(w, r, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// QueryInt читает целый параметр запроса. Пустое значение даёт def.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// QueryInt64 читает необязательный положительный параметр.
func QueryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, strconv.ErrSyntax
	}
	return &v, nil
}

// QueryBool читает флаг запроса: "true" или "1".
func QueryBool(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "true" || v == "1"
}

// QueryTime читает момент времени в RFC 3339 или дату YYYY-MM-DD в поясе loc.
func QueryTime(r *http.Request, name string, loc *time.Location) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(models.DateLayout, raw, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Paging читает limit и offset. Ошибки разбора отвечают 400.
func Paging(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, err := QueryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		response.Fail(w, r, http.StatusBadRequest, "invalid limit")
		return 0, 0, false
	}
	offset, err = QueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		response.Fail(w, r, http.StatusBadRequest, "invalid offset")
		return 0, 0, false
	}
	return limit, offset, true
}
