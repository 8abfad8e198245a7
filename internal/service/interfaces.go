package service

import (
	"context"

	"github.com/sandeepkv93/special-access-gate/internal/websession"
)

type MaintenanceReader interface {
	State(ctx context.Context) (MaintenanceState, error)
}

type TokenChecker interface {
	IsTokenActive(ctx context.Context, token string) (bool, error)
}

type SessionChecker interface {
	HasActiveSession(ctx context.Context, ws *websession.Session) bool
}

type AccessRecorder interface {
	Record(ctx context.Context, ev AccessEvent)
}

type RBACAuthorizer interface {
	HasPermission(permissions []string, required string) bool
}
