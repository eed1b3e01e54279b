package sale

import (
	"crypto/subtle"

	"nodesale/internal/failure"
)

type Role string

const (
	RoleRoot    Role = "root"
	RoleSigning Role = "signing"
	RoleBack    Role = "back"
)

// authorize fails unless presented is the non-empty key recorded for role.
func authorize(expected, presented string, role Role) error {
	if expected != "" && presented != "" &&
		subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1 {
		return nil
	}
	switch role {
	case RoleRoot:
		return failure.ErrUnauthorizedRoot
	case RoleBack:
		return failure.ErrUnauthorizedBack
	default:
		return failure.ErrUnauthorizedSigning
	}
}
