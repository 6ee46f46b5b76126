package domain

import "context"

// Actor is the authenticated caller. The vault trusts these values as supplied
// by the authentication layer and never re-derives them.
type Actor struct {
	ID        string
	Clearance Level
	Roles     []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequestMeta carries transport details used to enrich audit records.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Normalize fills absent values with "unknown".
func (m RequestMeta) Normalize() RequestMeta {
	if m.IPAddress == "" {
		m.IPAddress = UnknownRequestValue
	}
	if m.UserAgent == "" {
		m.UserAgent = UnknownRequestValue
	}
	return m
}

const (
	RoleAuditor = "vault_auditor"
	RoleAdmin   = "vault_admin"

	PermissionAuditRead      = "audit:read"
	PermissionAuditVerify    = "audit:verify"
	PermissionDocumentVerify = "admin:documents:verify"
)

type Authorizer interface {
	Require(actor Actor, permission string) error
}

type actorContextKey struct{}
type requestMetaContextKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// RequestMetaFromContext returns the request metadata, defaulted to "unknown".
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey{}).(RequestMeta)
	return meta.Normalize()
}
