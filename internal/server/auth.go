package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const tokenCookieName = "vg_token"

// authMiddleware accepts the token as a query param, trading it for a
// cookie and redirecting to the clean URL, or as that cookie.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if queryToken := c.Query("token"); queryToken != "" {
			if !s.validToken(queryToken) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}

			http.SetCookie(c.Writer, &http.Cookie{
				Name:     tokenCookieName,
				Value:    s.token,
				Path:     "/",
				HttpOnly: true,
				MaxAge:   int(24 * time.Hour / time.Second),
				SameSite: http.SameSiteLaxMode,
			})

			u := *c.Request.URL
			q := u.Query()
			q.Del("token")
			u.RawQuery = q.Encode()
			c.Redirect(http.StatusFound, u.String())
			c.Abort()
			return
		}

		cookie, err := c.Cookie(tokenCookieName)
		if err != nil || !s.validToken(cookie) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}

func (s *Server) validToken(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.token)) == 1
}
