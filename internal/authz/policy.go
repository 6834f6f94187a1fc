package authz

import (
	"context"
	"fmt"
	"strings"
)

type Role uint8

const (
	RoleStandard Role = iota + 1
	RolePrivileged
)

func (r Role) String() string {
	switch r {
	case RoleStandard:
		return "standard"
	case RolePrivileged:
		return "privileged"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// ParseRole accepts the canonical names plus the "user"/"admin" aliases used by
// the identity provider.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "user":
		return RoleStandard, nil
	case "privileged", "admin":
		return RolePrivileged, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Actor is the verified identity handed over by the access facade.
type Actor struct {
	SubjectID string
	Role      Role
}

func (a Actor) Privileged() bool { return a.Role == RolePrivileged }

type Operation uint8

const (
	CatalogMutate Operation = iota + 1
	CatalogListAll
	OrderCreate
	OrderCancel
	OrderAdvance
	OrderRead
	OrderListAll
)

func (o Operation) String() string {
	switch o {
	case CatalogMutate:
		return "catalog.mutate"
	case CatalogListAll:
		return "catalog.list_all"
	case OrderCreate:
		return "order.create"
	case OrderCancel:
		return "order.cancel"
	case OrderAdvance:
		return "order.advance"
	case OrderRead:
		return "order.read"
	case OrderListAll:
		return "order.list_all"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

type Decision bool

const (
	Deny   Decision = false
	Permit Decision = true
)

// Decide is the whole authorization policy. ownerID is the subject owning the
// target resource and is ignored for operations without an owner.
func Decide(actor Actor, op Operation, ownerID string) Decision {
	if actor.SubjectID == "" {
		return Deny
	}
	owns := ownerID != "" && ownerID == actor.SubjectID

	switch actor.Role {
	case RolePrivileged:
		switch op {
		case CatalogMutate, CatalogListAll, OrderCancel, OrderAdvance, OrderRead, OrderListAll:
			return Permit
		case OrderCreate:
			return Deny
		}
	case RoleStandard:
		switch op {
		case OrderCreate:
			return Permit
		case OrderCancel, OrderRead:
			return Decision(owns)
		case CatalogMutate, CatalogListAll, OrderAdvance, OrderListAll:
			return Deny
		}
	}
	return Deny
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
