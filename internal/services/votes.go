package services

import (
	"context"
	"errors"
	"fmt"

	"servicemarket/internal/db"
	"servicemarket/internal/metrics"
	"servicemarket/internal/models"
	"servicemarket/internal/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// 投票结果，用于日志与指标
const (
	VoteOutcomeCreated   = "created"
	VoteOutcomeUnchanged = "unchanged"
	VoteOutcomeFlipped   = "flipped"
	VoteOutcomeError     = "error"
)

// VoteLedger keeps the up/down counters of services and comments in step with their votes.
// A voter holds at most one vote per item; repeating it is a no-op and reversing it moves
// the vote from one counter to the other.
type VoteLedger struct {
	store db.Store
	locks *KeyedMutex
	log   logrus.FieldLogger
}

func NewVoteLedger(store db.Store, log logrus.FieldLogger) *VoteLedger {
	return &VoteLedger{
		store: store,
		locks: NewKeyedMutex(),
		log:   log.WithField("component", "vote_ledger"),
	}
}

// CastVote records voter's direction on the target item and returns the item with its
// updated counters together with the stored vote.
func (l *VoteLedger) CastVote(ctx context.Context, targetID string, kind models.VotableType, voter string, direction models.VoteType) (models.VotableItem, *models.Vote, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown item type %q", ErrInvalidArgument, kind)
	}
	if direction != models.VoteUp && direction != models.VoteDown {
		return nil, nil, fmt.Errorf("%w: unknown vote %d", ErrInvalidArgument, direction)
	}
	voter = utils.NormalizeAddress(voter)
	if voter == "" {
		return nil, nil, fmt.Errorf("%w: voter address required", ErrInvalidArgument)
	}

	// 同一 (投票人, 条目) 串行处理，避免先查后写的竞态
	unlock := l.locks.Lock(targetID + "|" + voter)
	defer unlock()

	item, err := l.fetchVotable(ctx, kind, targetID)
	if err != nil {
		return nil, nil, err
	}

	outcome := VoteOutcomeError
	defer func() { metrics.RecordVote(string(kind), outcome) }()

	existing, err := l.store.FindVote(ctx, targetID, voter)
	switch {
	case errors.Is(err, db.ErrNotFound):
		vote, err := l.createVote(ctx, item, voter, direction)
		if errors.Is(err, db.ErrDuplicate) {
			// Another process created the vote first; treat it as the existing vote.
			existing, err = l.store.FindVote(ctx, targetID, voter)
			if err != nil {
				return nil, nil, fmt.Errorf("reload vote: %w", err)
			}
			// 计数已被对方更新，重新读取
			item, err = l.fetchVotable(ctx, kind, targetID)
			if err != nil {
				return nil, nil, err
			}
			return l.changeVote(ctx, item, existing, direction, &outcome)
		}
		if err != nil {
			return nil, nil, err
		}
		outcome = VoteOutcomeCreated
		return item, vote, nil
	case err != nil:
		return nil, nil, fmt.Errorf("find vote: %w", err)
	default:
		return l.changeVote(ctx, item, existing, direction, &outcome)
	}
}

func (l *VoteLedger) fetchVotable(ctx context.Context, kind models.VotableType, id string) (models.VotableItem, error) {
	var (
		item models.VotableItem
		err  error
	)
	switch kind {
	case models.VotableService:
		var s *models.Service
		s, err = l.store.GetService(ctx, id)
		item = s
	case models.VotableComment:
		var c *models.Comment
		c, err = l.store.GetComment(ctx, id)
		item = c
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: no %s %s", ErrNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}
	return item, nil
}

// createVote claims the (item, voter) slot first and only then bumps the counter, so a
// create that loses to the unique index leaves the counters untouched.
func (l *VoteLedger) createVote(ctx context.Context, item models.VotableItem, voter string, direction models.VoteType) (*models.Vote, error) {
	vote := &models.Vote{
		ItemID:      item.ItemID(),
		ItemType:    item.ItemType(),
		UserAddress: voter,
		Value:       direction,
	}
	if err := l.store.CreateVote(ctx, vote); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("create vote: %w", err)
	}

	up, down := direction.Deltas()
	if err := l.store.AddVotes(ctx, item.ItemType(), item.ItemID(), up, down); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"item_id": item.ItemID(),
			"voter":   voter,
		}).Error("vote stored but counter update failed")
		return nil, fmt.Errorf("update counters: %w", err)
	}
	item.Counters().Apply(up, down)
	return vote, nil
}

// changeVote handles a voter who already has a vote on the item.
func (l *VoteLedger) changeVote(ctx context.Context, item models.VotableItem, vote *models.Vote, direction models.VoteType, outcome *string) (models.VotableItem, *models.Vote, error) {
	if vote.Value == direction {
		*outcome = VoteOutcomeUnchanged
		return item, vote, nil
	}

	// 反转投票：旧方向 -1，新方向 +1
	up, down := 1, -1
	if direction == models.VoteDown {
		up, down = -1, 1
	}
	vote.Value = direction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := l.store.AddVotes(gctx, item.ItemType(), item.ItemID(), up, down); err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := l.store.UpdateVote(gctx, vote); err != nil {
			return fmt.Errorf("update vote: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"item_id": item.ItemID(),
			"voter":   vote.UserAddress,
		}).Error("vote flip partially applied")
		return nil, nil, err
	}

	item.Counters().Apply(up, down)
	*outcome = VoteOutcomeFlipped
	return item, vote, nil
}
