package http

import (
	"net/http"
	"strconv"

	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Headers set by the auth gateway in front of the relay.
const (
	HeaderPrincipalRole = "X-Principal-Role"
	HeaderPrincipalID   = "X-Principal-ID"

	CodeUnauthenticated = "UNAUTHENTICATED"

	principalKey   = "principal"
	sessionRoleKey = "role"
	sessionIDKey   = "pid"
)

// PrincipalMiddleware resolves the caller from gateway headers and remembers it
// in the cookie session, so later polls from the same browser may omit them.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		store := sessions.Default(c)

		role, rawID := c.GetHeader(HeaderPrincipalRole), c.GetHeader(HeaderPrincipalID)
		if role != "" || rawID != "" {
			id, err := strconv.ParseInt(rawID, 10, 64)
			if err != nil {
				unauthenticated(c, "invalid principal id")
				return
			}
			pr, err := domain.NewPrincipal(role, id)
			if err != nil {
				unauthenticated(c, err.Error())
				return
			}
			if prev, ok := principalFromStore(store); !ok || prev != pr {
				store.Set(sessionRoleKey, string(pr.Role))
				store.Set(sessionIDKey, pr.ID)
				if err := store.Save(); err != nil {
					log.Error().Err(err).Str("module", "adapters.http").Msg("save principal cookie")
				}
			}
			c.Set(principalKey, pr)
			c.Next()
			return
		}

		pr, ok := principalFromStore(store)
		if !ok {
			unauthenticated(c, "missing principal")
			return
		}
		c.Set(principalKey, pr)
		c.Next()
	}
}

func principalFromStore(store sessions.Session) (domain.Principal, bool) {
	role, _ := store.Get(sessionRoleKey).(string)
	id, _ := store.Get(sessionIDKey).(int64)
	pr, err := domain.NewPrincipal(role, id)
	if err != nil {
		return domain.Principal{}, false
	}
	return pr, true
}

func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	pr, ok := v.(domain.Principal)
	return pr, ok
}

func unauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": CodeUnauthenticated, "message": msg})
}
