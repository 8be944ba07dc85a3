package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

var (
	errInitDataMissing   = errors.New("init_data отсутствует")
	errInitDataSignature = errors.New("подпись недействительна")
	errInitDataExpired   = errors.New("init_data устарела")
	errForbidden         = errors.New("недостаточно прав")
)

type ctxKey struct{}

// WebAppUser — пользователь из initData Telegram WebApp.
type WebAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// UserFromContext возвращает пользователя, прошедшего проверку initData.
func UserFromContext(ctx context.Context) (WebAppUser, bool) {
	u, ok := ctx.Value(ctxKey{}).(WebAppUser)
	return u, ok
}

// WebAppAuthMiddleware проверяет initData по токену бота. allow решает, допущен ли пользователь;
// maxAge ограничивает возраст auth_date (0 — без ограничения).
func WebAppAuthMiddleware(botToken string, maxAge time.Duration, allow func(userID int64) bool) func(http.Handler) http.Handler {
	secret := webAppSecret(botToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initData := r.Header.Get("X-Telegram-Init-Data")
			if initData == "" {
				initData = r.URL.Query().Get("init_data")
			}
			if initData == "" {
				WriteError(w, http.StatusUnauthorized, errInitDataMissing)
				return
			}
			user, err := ValidateInitData(initData, secret, maxAge, time.Now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, err)
				return
			}
			if allow != nil && !allow(user.ID) {
				WriteError(w, http.StatusForbidden, errForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
		})
	}
}

func webAppSecret(botToken string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(botToken))
	return h.Sum(nil)
}

// SignInitData подписывает набор полей так же, как это делает Telegram.
func SignInitData(values url.Values, botToken string) string {
	h := hmac.New(sha256.New, webAppSecret(botToken))
	h.Write([]byte(dataCheckString(values)))
	return hex.EncodeToString(h.Sum(nil))
}

func dataCheckString(values url.Values) string {
	pairs := make([]string, 0, len(values))
	for key := range values {
		if key == "hash" {
			continue
		}
		pairs = append(pairs, key+"="+values.Get(key))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\n")
}

// ValidateInitData проверяет подпись и срок действия initData и возвращает пользователя.
func ValidateInitData(initData string, secret []byte, maxAge time.Duration, now time.Time) (WebAppUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return WebAppUser{}, errInitDataSignature
	}
	expected, err := hex.DecodeString(values.Get("hash"))
	if err != nil || len(expected) == 0 {
		return WebAppUser{}, errInitDataSignature
	}
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(dataCheckString(values)))
	if !hmac.Equal(h.Sum(nil), expected) {
		return WebAppUser{}, errInitDataSignature
	}
	if maxAge > 0 {
		authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
		if err != nil || now.Sub(time.Unix(authDate, 0)) > maxAge {
			return WebAppUser{}, errInitDataExpired
		}
	}
	var user WebAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return WebAppUser{}, errInitDataSignature
	}
	return user, nil
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError отправляет JSON с ошибкой.
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}

// WriteJSON отправляет значение как JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
