// Package session は匿名セッションによる所有者識別を提供します。
// ログインは持たず、訪問者ごとに払い出す所有者トークンでジョブと
// アップロードを紐付けます。
package session

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// SessionCookieName はセッションクッキーの名前です。
	SessionCookieName = "ff_session"

	sessionKeyOwner = "owner_token"
)

// ContextOwnerKey は、ハンドラー間で所有者トークンを共有するためのキーです。
const ContextOwnerKey = "session.owner"

var sessionMaxAge = 7 * 24 * time.Hour

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(sessionMaxAge.Seconds())
}

// EnsureOwner は訪問者ごとに所有者トークンを払い出すミドルウェアを返します。
// トークン未発行の訪問者にはUUIDを生成してセッションへ保存します。
func EnsureOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		owner, ok := sess.Get(sessionKeyOwner).(string)
		if !ok || owner == "" {
			owner = uuid.NewString()
			sess.Set(sessionKeyOwner, owner)
			if err := sess.Save(); err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    "SESSION_SAVE_FAILED",
					"message": "セッションの保存に失敗しました。",
				})
				return
			}
		}
		c.Set(ContextOwnerKey, owner)
		c.Next()
	}
}

// OwnerToken は現在のリクエストの所有者トークンを返します。
// EnsureOwner が適用されていないリクエストでは空文字を返します。
func OwnerToken(c *gin.Context) string {
	return c.GetString(ContextOwnerKey)
}
