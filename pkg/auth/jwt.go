// Package auth parses already-issued bearer tokens into a session context.
// Token issuance and refresh live in the identity service; this side only
// verifies signatures and lifts claims.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medicore/opd-api/internal/model"
)

// SessionClaims is the claim set the identity service embeds in access
// tokens for staff users.
type SessionClaims struct {
	TenantID      string   `json:"tenant_id"`
	DepartmentIDs []string `json:"department_ids"`
	Capabilities  []string `json:"capabilities"`
	SuperAdmin    bool     `json:"super_admin"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates the token signature and expiry and builds the session
// context from its claims.
func (v *Verifier) Verify(tokenString string) (*model.SessionContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id claim: %w", err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject claim: %w", err)
	}

	departments := make([]uuid.UUID, 0, len(claims.DepartmentIDs))
	for _, raw := range claims.DepartmentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid department id claim: %w", err)
		}
		departments = append(departments, id)
	}

	capabilities := make([]model.Capability, 0, len(claims.Capabilities))
	for _, c := range claims.Capabilities {
		capabilities = append(capabilities, model.Capability(c))
	}

	return &model.SessionContext{
		TenantID:      tenantID,
		UserID:        userID,
		DepartmentIDs: departments,
		Capabilities:  capabilities,
		SuperAdmin:    claims.SuperAdmin,
	}, nil
}
