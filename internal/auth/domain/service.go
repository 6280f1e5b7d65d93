package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	// SwitchOrganization issues a token scoped to orgID. The caller must be an active member.
	SwitchOrganization(ctx context.Context, userID, orgID snowflake.ID) (*LoginResult, error)
	CurrentUser(ctx context.Context, userID snowflake.ID) (*User, error)
}
