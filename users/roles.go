package users

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is a coarse authorization tag carried by every user.
type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether the role is one of the known tags.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Roles is an ordered set of role tags.
type Roles []Role

// Has reports whether the set contains role.
func (rs Roles) Has(role Role) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// Intersects reports whether any role in rs is also in other.
func (rs Roles) Intersects(other Roles) bool {
	for _, r := range other {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// Normalize drops duplicates while keeping first-seen order.
func (rs Roles) Normalize() Roles {
	out := make(Roles, 0, len(rs))
	for _, r := range rs {
		if !out.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// Strings returns the role tags as plain strings.
func (rs Roles) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

// ParseRoles parses a comma separated role list, rejecting unknown tags.
func ParseRoles(s string) (Roles, error) {
	var rs Roles
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !Role(part).Valid() {
			return nil, fmt.Errorf("unknown role %q", part)
		}
		rs = append(rs, Role(part))
	}
	return rs.Normalize(), nil
}

// Value stores the set as a comma separated string.
func (rs Roles) Value() (driver.Value, error) {
	return strings.Join(rs.Strings(), ","), nil
}

// Scan reads a comma separated role list.
func (rs *Roles) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*rs = Roles{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("roles: unsupported scan type %T", src)
	}
	parsed, err := ParseRoles(s)
	if err != nil {
		return err
	}
	if parsed == nil {
		parsed = Roles{}
	}
	*rs = parsed
	return nil
}
