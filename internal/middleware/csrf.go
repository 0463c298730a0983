package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CSRFCookie = "csrf_token"
	CSRFField  = "_csrf"
	CSRFHeader = "X-CSRF-Token"

	csrfMaxAge = 12 * 60 * 60
)

// CSRF double-submit check: unsafe requests must echo the csrf_token cookie in
// the _csrf form field (or X-CSRF-Token). Missing token → 400, mismatch → 403.
// Bearer-authenticated API calls carry no cookie session and are exempt.
func CSRF(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookieToken, err := c.Cookie(CSRFCookie)
		if err != nil || cookieToken == "" {
			cookieToken = ""
			issued := uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CSRFCookie, issued, csrfMaxAge, "/", "", secure, true)
			c.Set("csrf_token", issued)
		} else {
			c.Set("csrf_token", cookieToken)
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		// browsers never attach an Authorization header on their own
		if strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") {
			c.Next()
			return
		}

		sent := c.PostForm(CSRFField)
		if sent == "" {
			sent = c.GetHeader(CSRFHeader)
		}
		if sent == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    40010,
				"message": "missing form token",
			})
			c.Abort()
			return
		}
		if cookieToken == "" || subtle.ConstantTimeCompare([]byte(sent), []byte(cookieToken)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    40320,
				"message": "invalid form token",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
