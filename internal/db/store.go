package db

import (
	"context"
	"errors"

	"servicemarket/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a create collides with a unique key.
	ErrDuplicate = errors.New("duplicate record")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects a 1-based page of results.
type Page struct {
	Page     int
	PageSize int
}

// Normalize fills in defaults and clamps the page size.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}

// PermissionFilter matches permissions by equality on the non-empty fields.
type PermissionFilter struct {
	UserAddress string
	ServiceID   string
}

// UserFilter matches user profiles by equality on the non-empty fields.
type UserFilter struct {
	Username string
	Address  string
}

// Store is the record store every component reads from and writes to.
//
// Counter columns are only changed through AddVotes, never by UpdateService,
// so that profile edits cannot clobber concurrent vote increments.
type Store interface {
	CreateService(ctx context.Context, service *models.Service) error
	UpdateService(ctx context.Context, service *models.Service) error
	GetService(ctx context.Context, id string) (*models.Service, error)
	GetServiceByURL(ctx context.Context, url string) (*models.Service, error)
	ListServices(ctx context.Context, owner string, page Page) ([]models.Service, error)
	SetServicePayment(ctx context.Context, serviceID, paymentID string) error

	CreateComment(ctx context.Context, comment *models.Comment) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, serviceID string, page Page) ([]models.Comment, error)

	AddVotes(ctx context.Context, kind models.VotableType, id string, up, down int) error
	FindVote(ctx context.Context, itemID, userAddress string) (*models.Vote, error)
	CreateVote(ctx context.Context, vote *models.Vote) error
	UpdateVote(ctx context.Context, vote *models.Vote) error

	FindPaymentByTxHash(ctx context.Context, txHash string) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error

	FindPermission(ctx context.Context, userAddress, serviceID string) (*models.Permission, error)
	UpsertPermission(ctx context.Context, permission *models.Permission) error
	ListPermissions(ctx context.Context, filter PermissionFilter, page Page) ([]models.Permission, error)

	GetUserInfo(ctx context.Context, address string) (*models.UserInfo, error)
	SaveUserInfo(ctx context.Context, user *models.UserInfo) error
	ListUserInfos(ctx context.Context, filter UserFilter, page Page) ([]models.UserInfo, error)
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
