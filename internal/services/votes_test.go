package services

import (
	"context"
	"io"
	"sync"
	"testing"

	"servicemarket/internal/db"
	"servicemarket/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 纯数字地址经 EIP-55 规范化后保持不变
const (
	voterA = "0x1111111111111111111111111111111111111111"
	voterB = "0x2222222222222222222222222222222222222222"
	owner  = "0x3333333333333333333333333333333333333333"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func seedService(t *testing.T, store db.Store, url string) *models.Service {
	t.Helper()
	s := &models.Service{Name: "Geocoder", URL: url, OwnerAddress: owner}
	require.NoError(t, store.CreateService(context.Background(), s))
	return s
}

func counters(t *testing.T, store db.Store, serviceID string) (int, int) {
	t.Helper()
	s, err := store.GetService(context.Background(), serviceID)
	require.NoError(t, err)
	return s.Upvotes, s.Downvotes
}

func TestCastVote_Scenario(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ledger := NewVoteLedger(store, quietLogger())
	s1 := seedService(t, store, "https://s1.example.com")

	steps := []struct {
		voter     string
		direction models.VoteType
		up, down  int
	}{
		{voterA, models.VoteUp, 1, 0},
		{voterA, models.VoteUp, 1, 0},
		{voterA, models.VoteDown, 0, 1},
		{voterB, models.VoteDown, 0, 2},
	}
	for i, step := range steps {
		item, vote, err := ledger.CastVote(ctx, s1.ID, models.VotableService, step.voter, step.direction)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, step.up, item.Counters().Upvotes, "step %d upvotes", i)
		assert.Equal(t, step.down, item.Counters().Downvotes, "step %d downvotes", i)
		assert.Equal(t, step.direction, vote.Value, "step %d vote", i)

		up, down := counters(t, store, s1.ID)
		assert.Equal(t, step.up, up, "step %d stored upvotes", i)
		assert.Equal(t, step.down, down, "step %d stored downvotes", i)
	}
	assert.Len(t, store.Votes(), 2)
}

func TestCastVote_RepeatIsNoop(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ledger := NewVoteLedger(store, quietLogger())
	s := seedService(t, store, "https://repeat.example.com")

	first, _, err := ledger.CastVote(ctx, s.ID, models.VotableService, voterA, models.VoteDown)
	require.NoError(t, err)
	store.ResetCalls()

	again, vote, err := ledger.CastVote(ctx, s.ID, models.VotableService, voterA, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, first.Counters(), again.Counters())
	assert.Equal(t, models.VoteDown, vote.Value)
	assert.Zero(t, store.Calls("AddVotes"))
	assert.Zero(t, store.Calls("UpdateVote"))
	assert.Zero(t, store.Calls("CreateVote"))
}

func TestCastVote_FlipKeepsSingleVote(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ledger := NewVoteLedger(store, quietLogger())
	s := seedService(t, store, "https://flip.example.com")

	for _, d := range []models.VoteType{models.VoteUp, models.VoteDown, models.VoteUp, models.VoteDown} {
		_, _, err := ledger.CastVote(ctx, s.ID, models.VotableService, voterA, d)
		require.NoError(t, err)
	}

	votes := store.Votes()
	require.Len(t, votes, 1)
	assert.Equal(t, models.VoteDown, votes[0].Value)
	up, down := counters(t, store, s.ID)
	assert.Equal(t, 0, up)
	assert.Equal(t, 1, down)
}

func TestCastVote_NormalizesVoter(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ledger := NewVoteLedger(store, quietLogger())
	s := seedService(t, store, "https://case.example.com")

	mixed := "0xAbCdEf0000000000000000000000000000000001"
	_, _, err := ledger.CastVote(ctx, s.ID, models.VotableService, mixed, models.VoteUp)
	require.NoError(t, err)
	_, _, err = ledger.CastVote(ctx, s.ID, models.VotableService, "0xabcdef0000000000000000000000000000000001", models.VoteUp)
	require.NoError(t, err)

	assert.Len(t, store.Votes(), 1)
	up, _ := counters(t, store, s.ID)
	assert.Equal(t, 1, up)
}

func TestCastVote_Comment(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ledger := NewVoteLedger(store, quietLogger())
	s := seedService(t, store, "https://comments.example.com")
	c := &models.Comment{ServiceID: s.ID, UserAddress: voterB, Comment: "works well"}
	require.NoError(t, store.CreateComment(ctx, c))

	item, vote, err := ledger.CastVote(ctx, c.ID, models.VotableComment, voterA, models.VoteUp)
	require.NoError(t, err)
	assert.Equal(t, models.VotableComment, vote.ItemType)
	assert.Equal(t, 1, item.Counters().Upvotes)

	stored, err := store.GetComment(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Upvotes)

	// 评论投票不影响服务计数
	up, down := counters(t, store, s.ID)
	assert.Zero(t, up)
	assert.Zero(t, down)
}

func TestCastVote_Errors(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ledger := NewVoteLedger(store, quietLogger())
	s := seedService(t, store, "https://errors.example.com")

	_, _, err := ledger.CastVote(ctx, "missing", models.VotableService, voterA, models.VoteUp)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = ledger.CastVote(ctx, s.ID, models.VotableComment, voterA, models.VoteUp)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = ledger.CastVote(ctx, s.ID, models.VotableType("post"), voterA, models.VoteUp)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = ledger.CastVote(ctx, s.ID, models.VotableService, voterA, models.VoteType(0))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = ledger.CastVote(ctx, s.ID, models.VotableService, " ", models.VoteUp)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, store.Votes())
}

func TestCastVote_ConcurrentSameVoter(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	ledger := NewVoteLedger(store, quietLogger())
	s := seedService(t, store, "https://race.example.com")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ledger.CastVote(ctx, s.ID, models.VotableService, voterA, models.VoteUp)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, store.Votes(), 1)
	up, down := counters(t, store, s.ID)
	assert.Equal(t, 1, up)
	assert.Zero(t, down)
}

// racingStore 在首次 CreateVote 前插入同一投票人的赞成票，模拟另一进程抢先写入
type racingStore struct {
	*db.MemoryStore
	raced bool
}

func (s *racingStore) CreateVote(ctx context.Context, vote *models.Vote) error {
	if !s.raced {
		s.raced = true
		rival := &models.Vote{ItemID: vote.ItemID, ItemType: vote.ItemType, UserAddress: vote.UserAddress, Value: models.VoteUp}
		if err := s.MemoryStore.CreateVote(ctx, rival); err != nil {
			return err
		}
		if err := s.MemoryStore.AddVotes(ctx, vote.ItemType, vote.ItemID, 1, 0); err != nil {
			return err
		}
	}
	return s.MemoryStore.CreateVote(ctx, vote)
}

func TestCastVote_LostCreateRaceReturnsFreshCounters(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{MemoryStore: db.NewMemoryStore()}
	ledger := NewVoteLedger(store, quietLogger())
	s := seedService(t, store, "https://race.example.com")

	item, vote, err := ledger.CastVote(ctx, s.ID, models.VotableService, voterA, models.VoteDown)
	require.NoError(t, err)
	assert.Equal(t, models.VoteDown, vote.Value)

	up, down := counters(t, store, s.ID)
	assert.Equal(t, 0, up)
	assert.Equal(t, 1, down)
	assert.Equal(t, up, item.Counters().Upvotes)
	assert.Equal(t, down, item.Counters().Downvotes)
	assert.Len(t, store.Votes(), 1)
}
