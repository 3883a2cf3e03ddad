package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"servicemarket/internal/models"
)

// MemoryStore is a process-local Store used for local runs and tests.
// It enforces the same unique keys as the SQL schema and counts calls per method.
type MemoryStore struct {
	mu          sync.Mutex
	services    map[string]models.Service
	comments    map[string]models.Comment
	votes       map[string]models.Vote
	payments    map[string]models.Payment
	permissions map[string]models.Permission
	users       map[string]models.UserInfo
	calls       map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services:    make(map[string]models.Service),
		comments:    make(map[string]models.Comment),
		votes:       make(map[string]models.Vote),
		payments:    make(map[string]models.Payment),
		permissions: make(map[string]models.Permission),
		users:       make(map[string]models.UserInfo),
		calls:       make(map[string]int),
	}
}

// Calls returns how many times the named method has been invoked.
func (m *MemoryStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// ResetCalls clears all call counters.
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
}

// Votes returns every stored vote, for assertions.
func (m *MemoryStore) Votes() []models.Vote {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Vote, 0, len(m.votes))
	for _, v := range m.votes {
		out = append(out, v)
	}
	return out
}

// Payments returns every stored payment, for assertions.
func (m *MemoryStore) Payments() []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, p)
	}
	return out
}

// enter locks the store and records the call. Callers must defer m.mu.Unlock().
func (m *MemoryStore) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	return ctx.Err()
}

func paginate[T any](items []T, page Page) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func voteKey(itemID, userAddress string) string {
	return itemID + "|" + userAddress
}

func (m *MemoryStore) CreateService(ctx context.Context, service *models.Service) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CreateService"); err != nil {
		return err
	}
	if service.ID == "" {
		service.ID = newID()
	}
	if _, ok := m.services[service.ID]; ok {
		return fmt.Errorf("%w: service %s", ErrDuplicate, service.ID)
	}
	for _, s := range m.services {
		if s.URL == service.URL {
			return fmt.Errorf("%w: service url %s", ErrDuplicate, service.URL)
		}
	}
	now := time.Now()
	service.CreatedAt, service.UpdatedAt = now, now
	m.services[service.ID] = *service
	return nil
}

func (m *MemoryStore) UpdateService(ctx context.Context, service *models.Service) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateService"); err != nil {
		return err
	}
	stored, ok := m.services[service.ID]
	if !ok {
		return ErrNotFound
	}
	for id, s := range m.services {
		if id != service.ID && s.URL == service.URL {
			return fmt.Errorf("%w: service url %s", ErrDuplicate, service.URL)
		}
	}
	stored.Name = service.Name
	stored.Description = service.Description
	stored.URL = service.URL
	stored.ImageURL = service.ImageURL
	stored.Price = service.Price
	stored.Tags = service.Tags
	stored.OwnerAddress = service.OwnerAddress
	stored.UpdatedAt = time.Now()
	m.services[service.ID] = stored
	return nil
}

func (m *MemoryStore) GetService(ctx context.Context, id string) (*models.Service, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetService"); err != nil {
		return nil, err
	}
	s, ok := m.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) GetServiceByURL(ctx context.Context, url string) (*models.Service, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetServiceByURL"); err != nil {
		return nil, err
	}
	for _, s := range m.services {
		if s.URL == url {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListServices(ctx context.Context, owner string, page Page) ([]models.Service, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListServices"); err != nil {
		return nil, err
	}
	out := make([]models.Service, 0, len(m.services))
	for _, s := range m.services {
		if owner == "" || s.OwnerAddress == owner {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, page), nil
}

func (m *MemoryStore) SetServicePayment(ctx context.Context, serviceID, paymentID string) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "SetServicePayment"); err != nil {
		return err
	}
	s, ok := m.services[serviceID]
	if !ok {
		return ErrNotFound
	}
	s.PaymentID = &paymentID
	m.services[serviceID] = s
	return nil
}

func (m *MemoryStore) CreateComment(ctx context.Context, comment *models.Comment) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CreateComment"); err != nil {
		return err
	}
	s, ok := m.services[comment.ServiceID]
	if !ok {
		return ErrNotFound
	}
	if comment.ID == "" {
		comment.ID = newID()
	}
	comment.CreatedAt = time.Now()
	m.comments[comment.ID] = *comment
	s.CommentCounter++
	m.services[s.ID] = s
	return nil
}

func (m *MemoryStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetComment"); err != nil {
		return nil, err
	}
	c, ok := m.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListComments(ctx context.Context, serviceID string, page Page) ([]models.Comment, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListComments"); err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0)
	for _, c := range m.comments {
		if c.ServiceID == serviceID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return paginate(out, page), nil
}

func (m *MemoryStore) AddVotes(ctx context.Context, kind models.VotableType, id string, up, down int) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "AddVotes"); err != nil {
		return err
	}
	switch kind {
	case models.VotableService:
		s, ok := m.services[id]
		if !ok {
			return ErrNotFound
		}
		s.Upvotes += up
		s.Downvotes += down
		m.services[id] = s
	case models.VotableComment:
		c, ok := m.comments[id]
		if !ok {
			return ErrNotFound
		}
		c.Upvotes += up
		c.Downvotes += down
		m.comments[id] = c
	default:
		return fmt.Errorf("unknown votable type %q", kind)
	}
	return nil
}

func (m *MemoryStore) FindVote(ctx context.Context, itemID, userAddress string) (*models.Vote, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "FindVote"); err != nil {
		return nil, err
	}
	v, ok := m.votes[voteKey(itemID, userAddress)]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *MemoryStore) CreateVote(ctx context.Context, vote *models.Vote) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CreateVote"); err != nil {
		return err
	}
	key := voteKey(vote.ItemID, vote.UserAddress)
	if _, ok := m.votes[key]; ok {
		return fmt.Errorf("%w: vote %s", ErrDuplicate, key)
	}
	if vote.ID == "" {
		vote.ID = newID()
	}
	now := time.Now()
	vote.CreatedAt, vote.UpdatedAt = now, now
	m.votes[key] = *vote
	return nil
}

func (m *MemoryStore) UpdateVote(ctx context.Context, vote *models.Vote) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpdateVote"); err != nil {
		return err
	}
	key := voteKey(vote.ItemID, vote.UserAddress)
	stored, ok := m.votes[key]
	if !ok || stored.ID != vote.ID {
		return ErrNotFound
	}
	stored.Value = vote.Value
	stored.UpdatedAt = time.Now()
	vote.UpdatedAt = stored.UpdatedAt
	m.votes[key] = stored
	return nil
}

func (m *MemoryStore) FindPaymentByTxHash(ctx context.Context, txHash string) (*models.Payment, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "FindPaymentByTxHash"); err != nil {
		return nil, err
	}
	p, ok := m.payments[txHash]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "CreatePayment"); err != nil {
		return err
	}
	if _, ok := m.payments[payment.TxHash]; ok {
		return fmt.Errorf("%w: payment %s", ErrDuplicate, payment.TxHash)
	}
	if payment.ID == "" {
		payment.ID = newID()
	}
	payment.CreatedAt = time.Now()
	m.payments[payment.TxHash] = *payment
	return nil
}

func (m *MemoryStore) FindPermission(ctx context.Context, userAddress, serviceID string) (*models.Permission, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "FindPermission"); err != nil {
		return nil, err
	}
	p, ok := m.permissions[voteKey(serviceID, userAddress)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) UpsertPermission(ctx context.Context, permission *models.Permission) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "UpsertPermission"); err != nil {
		return err
	}
	key := voteKey(permission.ServiceID, permission.UserAddress)
	now := time.Now()
	if existing, ok := m.permissions[key]; ok {
		existing.PaymentID = permission.PaymentID
		existing.UpdatedAt = now
		m.permissions[key] = existing
		*permission = existing
		return nil
	}
	if permission.ID == "" {
		permission.ID = newID()
	}
	permission.CreatedAt, permission.UpdatedAt = now, now
	m.permissions[key] = *permission
	return nil
}

func (m *MemoryStore) ListPermissions(ctx context.Context, filter PermissionFilter, page Page) ([]models.Permission, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListPermissions"); err != nil {
		return nil, err
	}
	out := make([]models.Permission, 0)
	for _, p := range m.permissions {
		if filter.UserAddress != "" && p.UserAddress != filter.UserAddress {
			continue
		}
		if filter.ServiceID != "" && p.ServiceID != filter.ServiceID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, page), nil
}

func (m *MemoryStore) GetUserInfo(ctx context.Context, address string) (*models.UserInfo, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "GetUserInfo"); err != nil {
		return nil, err
	}
	u, ok := m.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) SaveUserInfo(ctx context.Context, user *models.UserInfo) error {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "SaveUserInfo"); err != nil {
		return err
	}
	now := time.Now()
	if existing, ok := m.users[user.Address]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	m.users[user.Address] = *user
	return nil
}

func (m *MemoryStore) ListUserInfos(ctx context.Context, filter UserFilter, page Page) ([]models.UserInfo, error) {
	defer m.mu.Unlock()
	if err := m.enter(ctx, "ListUserInfos"); err != nil {
		return nil, err
	}
	out := make([]models.UserInfo, 0)
	for _, u := range m.users {
		if filter.Username != "" && u.Username != filter.Username {
			continue
		}
		if filter.Address != "" && u.Address != filter.Address {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return paginate(out, page), nil
}
