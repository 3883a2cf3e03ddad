package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"servicemarket/internal/db"
	"servicemarket/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	txOne = "0xAAAA000000000000000000000000000000000000000000000000000000000001"
	txTwo = "0xaaaa000000000000000000000000000000000000000000000000000000000002"
)

// fakeOracle 按交易哈希返回预置的支付
type fakeOracle struct {
	mu       sync.Mutex
	payments map[string]models.Payment
	err      error
	calls    int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{payments: make(map[string]models.Payment)}
}

func (o *fakeOracle) add(txHash, from string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.payments[strings.ToLower(txHash)] = models.Payment{
		TxHash:      strings.ToLower(txHash),
		FromAddress: from,
		ToAddress:   owner,
		Amount:      decimal.RequireFromString("12.5"),
		Reference:   "ref-" + txHash[len(txHash)-4:],
	}
}

func (o *fakeOracle) FetchPayment(_ context.Context, txHash string) (*models.Payment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	p, ok := o.payments[strings.ToLower(txHash)]
	if !ok {
		return nil, fmt.Errorf("%w: no payment for transaction %s", ErrNotFound, txHash)
	}
	return &p, nil
}

func TestGrantForPayment_Success(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	oracle := newFakeOracle()
	oracle.add(txOne, voterA)
	granter := NewPermissionGranter(store, oracle, quietLogger())
	s := seedService(t, store, "https://paid.example.com")

	service, permission, payment, err := granter.GrantForPayment(ctx, s.ID, txOne, voterA)
	require.NoError(t, err)

	assert.Equal(t, strings.ToLower(txOne), payment.TxHash)
	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, voterA, permission.UserAddress)
	assert.Equal(t, s.ID, permission.ServiceID)
	require.NotNil(t, permission.PaymentID)
	assert.Equal(t, payment.ID, *permission.PaymentID)
	require.NotNil(t, service.PaymentID)
	assert.Equal(t, payment.ID, *service.PaymentID)

	stored, err := store.GetService(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, payment.ID, *stored.PaymentID)

	_, err = store.FindPermission(ctx, voterA, s.ID)
	assert.NoError(t, err)
}

func TestGrantForPayment_TxRedeemedOnce(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	oracle := newFakeOracle()
	oracle.add(txOne, voterA)
	granter := NewPermissionGranter(store, oracle, quietLogger())
	s := seedService(t, store, "https://once.example.com")

	_, _, _, err := granter.GrantForPayment(ctx, s.ID, txOne, voterA)
	require.NoError(t, err)

	// 大小写不同的同一哈希也算重复
	_, _, _, err = granter.GrantForPayment(ctx, s.ID, strings.ToLower(txOne), voterA)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, store.Payments(), 1)
	assert.Equal(t, 1, oracle.calls)
}

func TestGrantForPayment_ClaimantMustBePayer(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	oracle := newFakeOracle()
	oracle.add(txOne, voterA)
	granter := NewPermissionGranter(store, oracle, quietLogger())
	s := seedService(t, store, "https://claim.example.com")

	_, _, _, err := granter.GrantForPayment(ctx, s.ID, txOne, voterB)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, store.Payments())
	_, err = store.FindPermission(ctx, voterB, s.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// 真正的付款人仍可兑换
	_, _, _, err = granter.GrantForPayment(ctx, s.ID, txOne, voterA)
	assert.NoError(t, err)
}

func TestGrantForPayment_PaymentMustCoverService(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	oracle := newFakeOracle()
	granter := NewPermissionGranter(store, oracle, quietLogger())

	pricey := &models.Service{Name: "Premium", URL: "https://premium.example.com", OwnerAddress: owner, Price: decimal.RequireFromString("20")}
	require.NoError(t, store.CreateService(ctx, pricey))
	oracle.add(txOne, voterA) // 12.5 < 20
	_, _, _, err := granter.GrantForPayment(ctx, pricey.ID, txOne, voterA)
	assert.ErrorIs(t, err, ErrForbidden)

	// 付给了别人的钱包
	other := &models.Service{Name: "Other", URL: "https://other.example.com", OwnerAddress: voterB}
	require.NoError(t, store.CreateService(ctx, other))
	_, _, _, err = granter.GrantForPayment(ctx, other.ID, txOne, voterA)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, store.Payments())
	_, err = store.FindPermission(ctx, voterA, pricey.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// 足额付给所有者即可兑换
	cheap := seedService(t, store, "https://cheap.example.com")
	_, _, _, err = granter.GrantForPayment(ctx, cheap.ID, txOne, voterA)
	assert.NoError(t, err)
}

func TestGrantForPayment_Failures(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	oracle := newFakeOracle()
	granter := NewPermissionGranter(store, oracle, quietLogger())
	s := seedService(t, store, "https://fail.example.com")

	_, _, _, err := granter.GrantForPayment(ctx, "missing", txOne, voterA)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, oracle.calls)

	_, _, _, err = granter.GrantForPayment(ctx, s.ID, txOne, voterA)
	assert.ErrorIs(t, err, ErrNotFound)

	oracle.err = fmt.Errorf("%w: timeout", ErrOracleUnavailable)
	_, _, _, err = granter.GrantForPayment(ctx, s.ID, txOne, voterA)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, _, _, err = granter.GrantForPayment(ctx, s.ID, "", voterA)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Empty(t, store.Payments())
}

func TestGrantForPayment_RepurchaseUpdatesPermission(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	oracle := newFakeOracle()
	oracle.add(txOne, voterA)
	oracle.add(txTwo, voterA)
	granter := NewPermissionGranter(store, oracle, quietLogger())
	s := seedService(t, store, "https://again.example.com")

	_, first, _, err := granter.GrantForPayment(ctx, s.ID, txOne, voterA)
	require.NoError(t, err)
	_, second, payment, err := granter.GrantForPayment(ctx, s.ID, txTwo, voterA)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, payment.ID, *second.PaymentID)
	assert.Len(t, store.Payments(), 2)

	perms, err := store.ListPermissions(ctx, db.PermissionFilter{ServiceID: s.ID}, db.Page{})
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, payment.ID, *perms[0].PaymentID)
}

func TestGrantForPayment_ConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	oracle := newFakeOracle()
	oracle.add(txOne, voterA)
	granter := NewPermissionGranter(store, oracle, quietLogger())
	s := seedService(t, store, "https://concurrent.example.com")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := granter.GrantForPayment(ctx, s.ID, txOne, voterA)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, conflicts)
	assert.Len(t, store.Payments(), 1)
}
