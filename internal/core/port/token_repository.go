package port

import (
	"context"
	"time"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
)

// TokenRepository manages refresh-token family records.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error)
	// MarkRefreshTokenUsed is a compare-and-swap: it succeeds only while the
	// record is still unused and unrevoked, and reports whether this caller
	// performed the transition. Concurrent rotations race on this call and
	// exactly one wins.
	MarkRefreshTokenUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
	RevokeFamily(ctx context.Context, familyID, reason string) (int, error)
	RevokeAllForUser(ctx context.Context, userID, reason string) (int, error)
}
