package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func newSessionRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := cookie.NewStore([]byte("test-secret"))
	router := gin.New()
	router.Use(sessions.Sessions(SessionCookieName, store))
	router.Use(EnsureOwner())
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, OwnerToken(c))
	})
	return router
}

func TestEnsureOwnerMintsToken(t *testing.T) {
	router := newSessionRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Body.String() == "" {
		t.Fatal("expected owner token to be minted")
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("expected session cookie to be set")
	}
}

func TestEnsureOwnerKeepsTokenAcrossRequests(t *testing.T) {
	router := newSessionRouter(t)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	owner := first.Body.String()
	if owner == "" {
		t.Fatal("expected owner token on first request")
	}

	second := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for _, c := range first.Result().Cookies() {
		req.AddCookie(c)
	}
	router.ServeHTTP(second, req)

	if got := second.Body.String(); got != owner {
		t.Fatalf("owner token changed across requests: %q -> %q", owner, got)
	}
}

func TestOwnerTokenWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := OwnerToken(c); got != "" {
		t.Fatalf("expected empty owner token, got %q", got)
	}
}
