package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paidTx = "0xbeef000000000000000000000000000000000000000000000000000000000001"

func TestSubgraphOracle_FetchPayment(t *testing.T) {
	// 模拟 subgraph GraphQL 服务
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Query string `json:"query"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, `txHash: "`+paidTx+`"`)

		w.Write([]byte(`{"data":{"payments":[{
			"amount":"1000000000000000000",
			"txHash":"` + paidTx + `",
			"from":"0x1111111111111111111111111111111111111111",
			"to":"0x2222222222222222222222222222222222222222",
			"contractAddress":"0x4444444444444444444444444444444444444444",
			"tokenAddress":"0x5555555555555555555555555555555555555555",
			"reference":"0xref"
		}]}}`))
	}))
	defer server.Close()

	oracle := NewSubgraphOracle(server.URL, time.Second, 0, quietLogger())
	payment, err := oracle.FetchPayment(context.Background(), paidTx)
	require.NoError(t, err)

	assert.Equal(t, paidTx, payment.TxHash)
	assert.Equal(t, voterA, payment.FromAddress)
	assert.Equal(t, voterB, payment.ToAddress)
	assert.Equal(t, "1000000000000000000", payment.Amount.String())
	assert.Equal(t, "0xref", payment.Reference)
	assert.Empty(t, payment.ID)
}

func TestSubgraphOracle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"no payment", http.StatusOK, `{"data":{"payments":[]}}`, ErrNotFound},
		{"graphql error", http.StatusOK, `{"errors":[{"message":"indexer down"}]}`, ErrOracleUnavailable},
		{"bad status", http.StatusServiceUnavailable, `oops`, ErrOracleUnavailable},
		{"invalid json", http.StatusOK, `{"data":`, ErrOracleUnavailable},
		{"bad amount", http.StatusOK, `{"data":{"payments":[{"amount":"lots","txHash":"` + paidTx + `"}]}}`, ErrOracleUnavailable},
		{"other tx", http.StatusOK, `{"data":{"payments":[{"amount":"1","txHash":"0x01"}]}}`, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			oracle := NewSubgraphOracle(server.URL, time.Second, 0, quietLogger())
			_, err := oracle.FetchPayment(context.Background(), paidTx)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubgraphOracle_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	oracle := NewSubgraphOracle(url, time.Second, 0, quietLogger())
	_, err := oracle.FetchPayment(context.Background(), paidTx)
	assert.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestSubgraphOracle_MalformedHash(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits++ }))
	defer server.Close()

	oracle := NewSubgraphOracle(server.URL, time.Second, 0, quietLogger())
	for _, tx := range []string{"", "0x", "beef", `0xbeef"}) { x`, "0x" + strings.Repeat("z", 64)} {
		_, err := oracle.FetchPayment(context.Background(), tx)
		assert.ErrorIs(t, err, ErrNotFound, tx)
	}
	assert.Zero(t, hits)
}
