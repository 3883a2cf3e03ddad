package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"servicemarket/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on top of gorm (PostgreSQL in production, SQLite in tests).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	// sqlite 驱动不会被 gorm 翻译，直接匹配错误文本
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func newID() string {
	return uuid.NewString()
}

func (s *GormStore) CreateService(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = newID()
	}
	return translate(s.db.WithContext(ctx).Create(service).Error)
}

func (s *GormStore) UpdateService(ctx context.Context, service *models.Service) error {
	res := s.db.WithContext(ctx).Model(&models.Service{}).
		Where("id = ?", service.ID).
		Select("name", "description", "url", "image_url", "price", "tags", "owner_address", "updated_at").
		Updates(service)
	if err := translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetService(ctx context.Context, id string) (*models.Service, error) {
	var service models.Service
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&service).Error; err != nil {
		return nil, translate(err)
	}
	return &service, nil
}

func (s *GormStore) GetServiceByURL(ctx context.Context, url string) (*models.Service, error) {
	var service models.Service
	if err := s.db.WithContext(ctx).Where("url = ?", url).First(&service).Error; err != nil {
		return nil, translate(err)
	}
	return &service, nil
}

func (s *GormStore) ListServices(ctx context.Context, owner string, page Page) ([]models.Service, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&models.Service{})
	if owner != "" {
		q = q.Where("owner_address = ?", owner)
	}
	services := make([]models.Service, 0)
	err := q.Order("created_at DESC").Order("id").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&services).Error
	return services, translate(err)
}

func (s *GormStore) SetServicePayment(ctx context.Context, serviceID, paymentID string) error {
	res := s.db.WithContext(ctx).Model(&models.Service{}).
		Where("id = ?", serviceID).
		UpdateColumn("payment_id", paymentID)
	if err := translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateComment stores the comment and bumps the parent service's comment counter in one transaction.
func (s *GormStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = newID()
	}
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Service{}).
			Where("id = ?", comment.ServiceID).
			UpdateColumn("comment_counter", gorm.Expr("comment_counter + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

func (s *GormStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error; err != nil {
		return nil, translate(err)
	}
	return &comment, nil
}

func (s *GormStore) ListComments(ctx context.Context, serviceID string, page Page) ([]models.Comment, error) {
	page = page.Normalize()
	comments := make([]models.Comment, 0)
	err := s.db.WithContext(ctx).
		Where("service_id = ?", serviceID).
		Order("created_at ASC").Order("id").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&comments).Error
	return comments, translate(err)
}

// AddVotes atomically increments the counters of a votable record.
func (s *GormStore) AddVotes(ctx context.Context, kind models.VotableType, id string, up, down int) error {
	var model interface{}
	switch kind {
	case models.VotableService:
		model = &models.Service{}
	case models.VotableComment:
		model = &models.Comment{}
	default:
		return fmt.Errorf("unknown votable type %q", kind)
	}
	if up == 0 && down == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(model).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"upvotes":   gorm.Expr("upvotes + ?", up),
			"downvotes": gorm.Expr("downvotes + ?", down),
		})
	if err := translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) FindVote(ctx context.Context, itemID, userAddress string) (*models.Vote, error) {
	var vote models.Vote
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND user_address = ?", itemID, userAddress).
		First(&vote).Error
	if err != nil {
		return nil, translate(err)
	}
	return &vote, nil
}

func (s *GormStore) CreateVote(ctx context.Context, vote *models.Vote) error {
	if vote.ID == "" {
		vote.ID = newID()
	}
	return translate(s.db.WithContext(ctx).Create(vote).Error)
}

func (s *GormStore) UpdateVote(ctx context.Context, vote *models.Vote) error {
	res := s.db.WithContext(ctx).Model(vote).
		Select("value", "updated_at").
		Updates(vote)
	if err := translate(res.Error); err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) FindPaymentByTxHash(ctx context.Context, txHash string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&payment).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (s *GormStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = newID()
	}
	return translate(s.db.WithContext(ctx).Create(payment).Error)
}

func (s *GormStore) FindPermission(ctx context.Context, userAddress, serviceID string) (*models.Permission, error) {
	var permission models.Permission
	err := s.db.WithContext(ctx).
		Where("user_address = ? AND service_id = ?", userAddress, serviceID).
		First(&permission).Error
	if err != nil {
		return nil, translate(err)
	}
	return &permission, nil
}

// UpsertPermission keeps a single row per (user, service). An existing row takes the new
// payment id and is copied back into permission.
func (s *GormStore) UpsertPermission(ctx context.Context, permission *models.Permission) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if permission.ID == "" {
			permission.ID = newID()
		}
		// 并发授予同一 (用户, 服务) 时由唯一索引合并为一次更新
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_address"}, {Name: "service_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payment_id", "updated_at"}),
		}).Create(permission).Error
		if err != nil {
			return err
		}
		// 冲突时 id 和 created_at 以已存储的行为准
		return tx.Where("user_address = ? AND service_id = ?", permission.UserAddress, permission.ServiceID).
			First(permission).Error
	}))
}

func (s *GormStore) ListPermissions(ctx context.Context, filter PermissionFilter, page Page) ([]models.Permission, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&models.Permission{})
	if filter.UserAddress != "" {
		q = q.Where("user_address = ?", filter.UserAddress)
	}
	if filter.ServiceID != "" {
		q = q.Where("service_id = ?", filter.ServiceID)
	}
	permissions := make([]models.Permission, 0)
	err := q.Order("created_at DESC").Order("id").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&permissions).Error
	return permissions, translate(err)
}

func (s *GormStore) GetUserInfo(ctx context.Context, address string) (*models.UserInfo, error) {
	var user models.UserInfo
	if err := s.db.WithContext(ctx).Where("address = ?", address).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// SaveUserInfo creates or replaces the profile keyed by address. created_at of an
// existing profile is kept.
func (s *GormStore) SaveUserInfo(ctx context.Context, user *models.UserInfo) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "bio", "email", "link", "updated_at"}),
	}).Create(user).Error
	return translate(err)
}

func (s *GormStore) ListUserInfos(ctx context.Context, filter UserFilter, page Page) ([]models.UserInfo, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&models.UserInfo{})
	if filter.Username != "" {
		q = q.Where("username = ?", filter.Username)
	}
	if filter.Address != "" {
		q = q.Where("address = ?", filter.Address)
	}
	users := make([]models.UserInfo, 0)
	err := q.Order("created_at ASC").Order("address").
		Offset(page.Offset()).Limit(page.PageSize).
		Find(&users).Error
	return users, translate(err)
}
