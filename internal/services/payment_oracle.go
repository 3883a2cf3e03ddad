package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"servicemarket/internal/models"
	"servicemarket/internal/utils"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// PaymentOracle looks up on-chain payments by transaction hash.
// It returns ErrNotFound when the transaction is unknown and ErrOracleUnavailable when
// the lookup itself failed.
type PaymentOracle interface {
	FetchPayment(ctx context.Context, txHash string) (*models.Payment, error)
}

const paymentQuery = `{
  payments(where: {txHash: "%s"}, first: 1) {
    amount
    txHash
    from
    to
    contractAddress
    tokenAddress
    reference
  }
}`

// SubgraphOracle queries the Request Network payments subgraph over GraphQL.
type SubgraphOracle struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// NewSubgraphOracle creates an oracle for the subgraph at url. rps caps outgoing queries
// per second; zero or less disables the cap.
func NewSubgraphOracle(url string, timeout time.Duration, rps float64, log logrus.FieldLogger) *SubgraphOracle {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &SubgraphOracle{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log.WithField("component", "payment_oracle"),
	}
}

func (o *SubgraphOracle) FetchPayment(ctx context.Context, txHash string) (*models.Payment, error) {
	txHash = strings.TrimSpace(txHash)
	if !isTxHash(txHash) {
		return nil, fmt.Errorf("%w: malformed transaction hash %q", ErrNotFound, txHash)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	body, err := json.Marshal(map[string]string{"query": fmt.Sprintf(paymentQuery, txHash)})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		o.log.WithError(err).WithField("tx_hash", txHash).Warn("payment oracle request failed")
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrOracleUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		o.log.WithFields(logrus.Fields{"tx_hash": txHash, "status": resp.StatusCode}).Warn("payment oracle returned error status")
		return nil, fmt.Errorf("%w: status %d", ErrOracleUnavailable, resp.StatusCode)
	}

	return parsePaymentResponse(raw, txHash)
}

// parsePaymentResponse extracts the first payment from a subgraph GraphQL response.
func parsePaymentResponse(raw []byte, txHash string) (*models.Payment, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON response", ErrOracleUnavailable)
	}
	if errs := gjson.GetBytes(raw, "errors"); errs.Exists() && len(errs.Array()) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrOracleUnavailable, errs.Get("0.message").String())
	}

	p := gjson.GetBytes(raw, "data.payments.0")
	if !p.Exists() {
		return nil, fmt.Errorf("%w: no payment for transaction %s", ErrNotFound, txHash)
	}

	amount, err := decimal.NewFromString(p.Get("amount").String())
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", ErrOracleUnavailable, p.Get("amount").String())
	}

	if reported := p.Get("txHash").String(); reported != "" && !strings.EqualFold(reported, txHash) {
		return nil, fmt.Errorf("%w: oracle answered for transaction %s", ErrNotFound, reported)
	}
	return &models.Payment{
		TxHash:          strings.ToLower(txHash),
		ContractAddress: utils.NormalizeAddress(p.Get("contractAddress").String()),
		TokenAddress:    utils.NormalizeAddress(p.Get("tokenAddress").String()),
		FromAddress:     utils.NormalizeAddress(p.Get("from").String()),
		ToAddress:       utils.NormalizeAddress(p.Get("to").String()),
		Amount:          amount,
		Reference:       p.Get("reference").String(),
	}, nil
}

// isTxHash accepts 0x-prefixed hex strings, which also keeps quotes out of the query.
func isTxHash(s string) bool {
	if len(s) < 4 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
