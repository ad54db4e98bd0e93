package rbac

import (
	"fmt"
	"strings"
	"sync"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermUsersView     Permission = "users.view"
	PermUsersManage   Permission = "users.manage"
	PermProfileManage Permission = "profile.manage"
	PermAll           Permission = "*"
)

type Role struct {
	Name        string
	Permissions []Permission
}

const modelText = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || r.obj == p.obj)
`

// Policy answers whether any of a session's roles grants a permission.
type Policy struct {
	mu       sync.RWMutex
	enforcer *casbin.Enforcer
}

func NewPolicy(roles []Role) *Policy {
	p, err := Build(roles)
	if err != nil {
		panic(err)
	}
	return p
}

func Build(roles []Role) (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	p := &Policy{enforcer: e}
	if err := p.load(roles); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) load(roles []Role) error {
	for _, r := range roles {
		name := normalize(r.Name)
		for _, perm := range r.Permissions {
			if _, err := p.enforcer.AddPolicy(name, string(perm)); err != nil {
				return fmt.Errorf("rbac add %s/%s: %w", name, perm, err)
			}
		}
	}
	return nil
}

// Replace swaps the loaded rules, e.g. after roles were seeded.
func (p *Policy) Replace(roles []Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enforcer.ClearPolicy()
	return p.load(roles)
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range roles {
		ok, err := p.enforcer.Enforce(normalize(r), string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

func normalize(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// DefaultRoles maps the seeded role names to their permissions.
func DefaultRoles(superAdmin string) []Role {
	return []Role{
		{Name: superAdmin, Permissions: []Permission{PermAll}},
		{Name: "admin", Permissions: []Permission{PermUsersView, PermUsersManage, PermProfileManage}},
		{Name: "user", Permissions: []Permission{PermProfileManage}},
	}
}
