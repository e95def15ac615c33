package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ctxAdmin = "auth_admin"
	ctxGuild = "auth_guild"
)

// authRequired accepts either the shared admin secret (x-web-secret) or a
// guild-scoped session token (x-web-token). Admin access covers every
// guild; a token is bound to the guild it was issued for.
func (s *Server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := c.GetHeader("x-web-secret"); secret != "" && s.cfg.WebSecret != "" && secret == s.cfg.WebSecret {
			c.Set(ctxAdmin, true)
			c.Next()
			return
		}

		if token := c.GetHeader("x-web-token"); token != "" {
			ws, err := s.repo.GetWebSession(c.Request.Context(), token)
			if err == nil {
				c.Set(ctxAdmin, ws.Admin)
				c.Set(ctxGuild, ws.GuildID)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// adminOnly rejects guild-scoped tokens.
func adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ctxAdmin) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// guildScoped rejects requests whose token is bound to a different guild.
func guildScoped() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ctxAdmin) {
			c.Next()
			return
		}
		if c.GetString(ctxGuild) != c.Param("gid") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token not valid for this guild"})
			return
		}
		c.Next()
	}
}
