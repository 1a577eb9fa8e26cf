package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/devxaves/lifeline-protocol/internal/models"
)

// Тип для ключа контекста.
type contextKey string

// WalletKey - ключ для хранения кошелька вызывающего в контексте.
const WalletKey contextKey = "wallet"

// WalletHeader - заголовок, в котором клиент передает свой кошелек.
// Подпись кошелька здесь не проверяется.
const WalletHeader = "X-Wallet-Address"

// KindUnauthenticated - класс ошибки для запроса без кошелька вызывающего.
const KindUnauthenticated = "unauthenticated"

// Identity требует заголовок X-Wallet-Address и кладет кошелек в контекст запроса.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet := strings.TrimSpace(r.Header.Get(WalletHeader))
		if wallet == "" {
			log.Printf("[IdentityMiddleware] Заголовок %s отсутствует", WalletHeader)
			WriteUnauthenticated(w)
			return
		}

		ctx := context.WithValue(r.Context(), WalletKey, wallet)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WriteUnauthenticated отправляет 401 с JSON-телом {error, kind}.
func WriteUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	err := json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: "Требуется заголовок " + WalletHeader,
		Kind:  KindUnauthenticated,
	})
	if err != nil {
		log.Printf("[IdentityMiddleware] Ошибка кодирования ответа: %v", err)
	}
}

// GetWalletFromContext извлекает кошелек вызывающего из контекста.
// Возвращает кошелек и true, если он найден, иначе пустую строку и false.
func GetWalletFromContext(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(WalletKey).(string)
	return wallet, ok && wallet != ""
}
