package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/devxaves/lifeline-protocol/internal/models"
	"github.com/devxaves/lifeline-protocol/internal/services"
)

// statusByKind сопоставляет класс ошибки сервиса и HTTP-статус.
var statusByKind = map[services.Kind]int{
	services.KindValidation:   http.StatusBadRequest,
	services.KindConflict:     http.StatusConflict,
	services.KindNotFound:     http.StatusNotFound,
	services.KindForbidden:    http.StatusForbidden,
	services.KindInvalidState: http.StatusConflict,
	services.KindUnavailable:  http.StatusServiceUnavailable,
	services.KindInternal:     http.StatusInternalServerError,
}

// writeJSON кодирует ответ в JSON.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Handlers] Ошибка кодирования ответа: %v", err)
	}
}

// writeError отправляет ошибку сервиса с ее классом.
// Для внутренних ошибок детали не раскрываются клиенту.
func writeError(w http.ResponseWriter, op string, err error) {
	kind := services.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := err.Error()
	var se *services.Error
	if errors.As(err, &se) && se.Message != "" {
		msg = se.Message
	}
	if kind == services.KindInternal {
		log.Printf("[%s] Внутренняя ошибка: %v", op, err)
		msg = "Внутренняя ошибка сервера"
	} else {
		log.Printf("[%s] Ошибка (%s): %v", op, kind, err)
	}

	writeJSON(w, status, models.ErrorResponse{Error: msg, Kind: string(kind)})
}

// writeBadRequest отправляет ошибку разбора запроса.
func writeBadRequest(w http.ResponseWriter, op, msg string) {
	log.Printf("[%s] Неверный запрос: %s", op, msg)
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: msg, Kind: string(services.KindValidation)})
}
