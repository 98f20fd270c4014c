package transfer

import (
	"context"
	"errors"
	"fmt"

	"log/slog"

	"github.com/enessayaci/heybe/internal/repository"
)

// ErrInvalidTransfer indicates the coordinator was asked to move ownership
// between identifiers that cannot form a valid transfer.
var ErrInvalidTransfer = errors.New("transfer: invalid source or target")

// Coordinator reassigns item ownership from a guest identity to a permanent
// identity and retires the guest.
type Coordinator struct {
	repo   repository.TransferRepository
	logger *slog.Logger
}

// New constructs a Coordinator.
func New(repo repository.TransferRepository, logger *slog.Logger) Coordinator {
	return Coordinator{repo: repo, logger: logger}
}

// Result describes the outcome of one transfer attempt.
type Result struct {
	ItemsMoved    int64
	SourceRetired bool
	// AlreadyAbsent is set when the source identity row no longer existed,
	// typically because an earlier transfer already retired it.
	AlreadyAbsent bool
}

// TransferAndRetire moves every item owned by sourceID to targetID and
// deletes the source guest identity, inside one transaction. Calling it again
// for an already-transferred source is a no-op success: zero items move and
// the missing source row is reported as already absent.
func (c Coordinator) TransferAndRetire(ctx context.Context, sourceID, targetID string) (Result, error) {
	if sourceID == "" || targetID == "" || sourceID == targetID {
		return Result{}, ErrInvalidTransfer
	}
	moved, retired, err := c.repo.TransferOwnership(ctx, sourceID, targetID)
	if err != nil {
		return Result{}, fmt.Errorf("transfer ownership: %w", err)
	}
	return Result{ItemsMoved: moved, SourceRetired: retired, AlreadyAbsent: !retired}, nil
}

// BestEffort runs TransferAndRetire and absorbs any failure. The surrounding
// register/login must still succeed when the transfer does not: losing a
// wishlist migration is recoverable, losing the login is not.
func (c Coordinator) BestEffort(ctx context.Context, sourceID, targetID string) {
	res, err := c.TransferAndRetire(ctx, sourceID, targetID)
	if err != nil {
		c.logger.Error("ownership transfer failed", "source_id", sourceID, "target_id", targetID, "error", err)
		return
	}
	c.logger.Info("ownership transferred",
		"source_id", sourceID,
		"target_id", targetID,
		"items_moved", res.ItemsMoved,
		"source_retired", res.SourceRetired,
		"already_absent", res.AlreadyAbsent)
}
