package models

import (
	"fmt"
	"strings"
)

// Votable 可被投票的记录共享的计数字段
type Votable struct {
	Upvotes   int `gorm:"not null;default:0" json:"upvotes"`
	Downvotes int `gorm:"not null;default:0" json:"downvotes"`
}

// Apply adds the given deltas to the counters, mirroring the store's increment.
func (v *Votable) Apply(up, down int) {
	v.Upvotes += up
	v.Downvotes += down
}

// VotableItem is implemented by records that carry vote counters.
type VotableItem interface {
	ItemID() string
	ItemType() VotableType
	Counters() *Votable
}

type VotableType string

const (
	VotableService VotableType = "service"
	VotableComment VotableType = "comment"
)

func (t VotableType) Valid() bool {
	return t == VotableService || t == VotableComment
}

type VoteType int

const (
	VoteUp   VoteType = 1
	VoteDown VoteType = -1
)

func (v VoteType) String() string {
	switch v {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	}
	return fmt.Sprintf("VoteType(%d)", int(v))
}

// Deltas returns the (upvotes, downvotes) increment a fresh vote of this direction causes.
func (v VoteType) Deltas() (int, int) {
	if v == VoteUp {
		return 1, 0
	}
	return 0, 1
}

// ParseVoteType accepts "up"/"down" as well as the numeric forms "1"/"-1".
func ParseVoteType(s string) (VoteType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "1", "+1":
		return VoteUp, nil
	case "down", "-1":
		return VoteDown, nil
	}
	return 0, fmt.Errorf("invalid vote %q", s)
}
