package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"servicemarket/internal/db"
	"servicemarket/internal/metrics"
	"servicemarket/internal/models"
	"servicemarket/internal/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PermissionGranter turns a verified payment into an access permission for a service.
type PermissionGranter struct {
	store  db.Store
	oracle PaymentOracle
	locks  *KeyedMutex
	log    logrus.FieldLogger
}

func NewPermissionGranter(store db.Store, oracle PaymentOracle, log logrus.FieldLogger) *PermissionGranter {
	return &PermissionGranter{
		store:  store,
		oracle: oracle,
		locks:  NewKeyedMutex(),
		log:    log.WithField("component", "permission_granter"),
	}
}

// GrantForPayment redeems txHash for claimant on the given service.
//
// A transaction hash can be redeemed once. The payment is stored before the service and
// permission reference it, so an interrupted grant leaves at worst an unreferenced payment.
func (g *PermissionGranter) GrantForPayment(ctx context.Context, serviceID, txHash, claimant string) (*models.Service, *models.Permission, *models.Payment, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	claimant = utils.NormalizeAddress(claimant)
	if txHash == "" || claimant == "" {
		metrics.RecordGrant("invalid")
		return nil, nil, nil, fmt.Errorf("%w: transaction hash and claimant are required", ErrInvalidArgument)
	}
	log := g.log.WithFields(logrus.Fields{
		"service_id": serviceID,
		"tx_hash":    txHash,
		"claimant":   claimant,
	})

	// 1. 服务必须存在
	service, err := g.store.GetService(ctx, serviceID)
	if errors.Is(err, db.ErrNotFound) {
		metrics.RecordGrant("not_found")
		return nil, nil, nil, fmt.Errorf("%w: no service %s", ErrNotFound, serviceID)
	}
	if err != nil {
		metrics.RecordGrant("error")
		return nil, nil, nil, fmt.Errorf("fetch service: %w", err)
	}

	unlock := g.locks.Lock(txHash)
	defer unlock()

	// 2. 同一笔交易只能兑换一次
	if _, err := g.store.FindPaymentByTxHash(ctx, txHash); err == nil {
		metrics.RecordGrant("conflict")
		return nil, nil, nil, fmt.Errorf("%w: transaction %s already redeemed", ErrConflict, txHash)
	} else if !errors.Is(err, db.ErrNotFound) {
		metrics.RecordGrant("error")
		return nil, nil, nil, fmt.Errorf("find payment: %w", err)
	}

	// 3. 向链上数据源确认交易
	payment, err := g.oracle.FetchPayment(ctx, txHash)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.RecordGrant("not_found")
		case errors.Is(err, ErrOracleUnavailable):
			metrics.RecordGrant("oracle_unavailable")
		default:
			metrics.RecordGrant("error")
		}
		log.WithError(err).Info("payment lookup failed")
		return nil, nil, nil, err
	}

	// 4. 付款人必须是申领人本人
	if !utils.SameAddress(payment.FromAddress, claimant) {
		metrics.RecordGrant("forbidden")
		log.WithField("payer", payment.FromAddress).Warn("payment claimed by a different wallet")
		return nil, nil, nil, fmt.Errorf("%w: transaction %s was not paid by %s", ErrForbidden, txHash, claimant)
	}

	// 付款必须打给服务所有者且不少于标价
	if !utils.SameAddress(payment.ToAddress, service.OwnerAddress) {
		metrics.RecordGrant("forbidden")
		log.WithField("payee", payment.ToAddress).Warn("payment sent to a wallet other than the service owner")
		return nil, nil, nil, fmt.Errorf("%w: transaction %s did not pay the owner of service %s", ErrForbidden, txHash, service.ID)
	}
	if payment.Amount.LessThan(service.Price) {
		metrics.RecordGrant("forbidden")
		log.WithFields(logrus.Fields{"amount": payment.Amount.String(), "price": service.Price.String()}).Warn("payment below service price")
		return nil, nil, nil, fmt.Errorf("%w: transaction %s paid %s, service %s costs %s", ErrForbidden, txHash, payment.Amount, service.ID, service.Price)
	}

	// 5. 先持久化支付记录，占住该交易哈希
	payment.ID = ""
	payment.TxHash = txHash
	if err := g.store.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			metrics.RecordGrant("conflict")
			return nil, nil, nil, fmt.Errorf("%w: transaction %s already redeemed", ErrConflict, txHash)
		}
		metrics.RecordGrant("error")
		return nil, nil, nil, fmt.Errorf("store payment: %w", err)
	}

	// 6-7. 关联支付并授予权限
	paymentID := payment.ID
	service.PaymentID = &paymentID
	permission := &models.Permission{
		UserAddress: claimant,
		ServiceID:   service.ID,
		PaymentID:   &paymentID,
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := g.store.SetServicePayment(egctx, service.ID, paymentID); err != nil {
			return fmt.Errorf("link payment: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := g.store.UpsertPermission(egctx, permission); err != nil {
			return fmt.Errorf("store permission: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		metrics.RecordGrant("error")
		log.WithError(err).WithField("payment_id", paymentID).Error("payment stored but grant incomplete")
		return nil, nil, nil, err
	}

	metrics.RecordGrant("granted")
	log.WithField("permission_id", permission.ID).Info("permission granted")
	return service, permission, payment, nil
}
