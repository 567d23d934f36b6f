package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// MetricsBasicAuth は /metrics エンドポイント用の Basic 認証ミドルウェア
// 認証情報が設定されている場合のみ認証を要求し、
// 空の場合は認証をスキップする（ローカル開発用）
func MetricsBasicAuth(expectedUser, expectedPass string) echo.MiddlewareFunc {
	// 認証設定がない場合はスキップ（パススルー）
	if expectedUser == "" || expectedPass == "" {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return next(c)
			}
		}
	}

	return middleware.BasicAuth(func(username, password string, c echo.Context) (bool, error) {
		// タイミング攻撃を防ぐため ConstantTimeCompare を使用
		userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(expectedUser)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(password), []byte(expectedPass)) == 1

		return userMatch && passMatch, nil
	})
}
