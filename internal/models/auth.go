package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims are issued by the suite's auth layer and validated here.
// TenantID scopes every repository query; TeacherID links staff tokens to
// their directory record (empty for super admins).
type JWTClaims struct {
	UserID    string `json:"user_id"`
	TenantID  string `json:"tenant_id"`
	TeacherID string `json:"teacher_id,omitempty"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// IsSuperAdmin reports whether the claims belong to an admin with no
// teacher linkage. Only super admins may review leaves.
func (c *JWTClaims) IsSuperAdmin() bool {
	return c != nil && c.Role == RoleAdmin && c.TeacherID == ""
}
