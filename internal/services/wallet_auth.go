package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"servicemarket/internal/utils"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const tokenIssuer = "servicemarket"

// Authenticator resolves the wallet address behind a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// ChallengeResponse is handed to a wallet to sign.
type ChallengeResponse struct {
	Address   string `json:"address"`
	Challenge string `json:"challenge"`
	ValidTil  int64  `json:"valid_til"`
}

// TokenResponse carries the bearer token issued for a solved challenge.
type TokenResponse struct {
	Address  string `json:"address"`
	Token    string `json:"token"`
	ValidTil int64  `json:"valid_til"`
}

// WalletAuth implements signature challenge authentication: a wallet signs a one-time
// challenge with personal_sign and exchanges the signature for a bearer token.
type WalletAuth struct {
	secret       []byte
	tokenTTL     time.Duration
	challengeTTL time.Duration
	challenges   *utils.ExpiringCache[string]
	now          func() time.Time
	log          logrus.FieldLogger
}

func NewWalletAuth(secret string, tokenTTL, challengeTTL time.Duration, log logrus.FieldLogger) (*WalletAuth, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: auth secret is empty", ErrConfiguration)
	}
	challenges, err := utils.NewExpiringCache[string](10000, challengeTTL)
	if err != nil {
		return nil, err
	}
	return &WalletAuth{
		secret:       []byte(secret),
		tokenTTL:     tokenTTL,
		challengeTTL: challengeTTL,
		challenges:   challenges,
		now:          time.Now,
		log:          log.WithField("component", "wallet_auth"),
	}, nil
}

// Challenge issues a fresh challenge for address, replacing any pending one.
func (a *WalletAuth) Challenge(address string) (*ChallengeResponse, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q is not a wallet address", ErrInvalidArgument, address)
	}
	address = utils.NormalizeAddress(address)

	message := fmt.Sprintf("Sign this message to authenticate %s with Service Market.\nNonce: %s", address, uuid.NewString())
	a.challenges.Set(address, message)
	return &ChallengeResponse{
		Address:   address,
		Challenge: message,
		ValidTil:  a.now().Add(a.challengeTTL).Unix(),
	}, nil
}

// Solve checks that signature is address's signature over its pending challenge and
// returns a bearer token. Each challenge can be solved once.
func (a *WalletAuth) Solve(address, signature string) (*TokenResponse, error) {
	address = utils.NormalizeAddress(address)
	message, ok := a.challenges.Take(address)
	if !ok {
		return nil, fmt.Errorf("%w: no pending challenge for %s", ErrUnauthorized, address)
	}

	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if signer != address {
		a.log.WithFields(logrus.Fields{"address": address, "signer": signer}).Warn("challenge signed by another wallet")
		return nil, fmt.Errorf("%w: signature does not match address", ErrUnauthorized)
	}

	expires := a.now().Add(a.tokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   address,
		IssuedAt:  jwt.NewNumericDate(a.now()),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &TokenResponse{Address: address, Token: token, ValidTil: expires.Unix()}, nil
}

// Authenticate reads the bearer token from the Authorization header.
func (a *WalletAuth) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing Authorization header", ErrUnauthorized)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("%w: invalid Authorization header format", ErrUnauthorized)
	}
	return a.ParseToken(strings.TrimSpace(parts[1]))
}

// ParseToken validates a bearer token and returns the wallet address it was issued to.
func (a *WalletAuth) ParseToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// RecoverSigner returns the checksummed address that produced an EIP-191 personal_sign
// signature over message.
func RecoverSigner(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", errors.New("signature must be 65 bytes")
	}
	// 钱包返回的 V 为 27/28，go-ethereum 需要 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
