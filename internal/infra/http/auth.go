package http

import (
	"errors"
	"net/http"
	"strings"

	"custody/internal/domain"
	"custody/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

// Identity headers are set by the authenticating gateway in front of the vault.
// The vault trusts them and never re-derives the actor.
const (
	headerActorID        = "X-Actor-ID"
	headerActorClearance = "X-Actor-Clearance"
	headerActorRoles     = "X-Actor-Roles"

	actorContextKey = "actor"
)

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(headerActorID))
		if actorID == "" {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor")
			c.Abort()
			return
		}
		clearance, err := domain.ParseLevel(c.GetHeader(headerActorClearance))
		if err != nil {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid clearance")
			c.Abort()
			return
		}
		actor := domain.Actor{
			ID:        actorID,
			Clearance: clearance,
			Roles:     parseRoles(c.GetHeader(headerActorRoles)),
		}
		meta := domain.RequestMeta{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		ctx := domain.WithActor(c.Request.Context(), actor)
		ctx = domain.WithRequestMeta(ctx, meta)
		c.Request = c.Request.WithContext(ctx)
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

func parseRoles(value string) []string {
	roles := make([]string, 0)
	for _, role := range strings.Split(value, ",") {
		role = strings.TrimSpace(role)
		if role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// requestActor returns the actor and metadata attached by authenticate.
func requestActor(c *gin.Context) (domain.Actor, domain.RequestMeta) {
	actor, _ := domain.ActorFromContext(c.Request.Context())
	return actor, domain.RequestMetaFromContext(c.Request.Context())
}

func getActorID(c *gin.Context) string {
	raw, ok := c.Get(actorContextKey)
	if !ok {
		return ""
	}
	actor, ok := raw.(domain.Actor)
	if !ok {
		return ""
	}
	return actor.ID
}

func writeAuthzError(c *gin.Context, err error) {
	if authz, ok := rbac.IsAuthzError(err); ok {
		writeErrorCode(c, http.StatusForbidden, authz.Code, "forbidden")
		return
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
}
