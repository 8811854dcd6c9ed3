package formance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Compile-time check: *Ledger must satisfy store.BalanceLedger.
var _ store.BalanceLedger = (*Ledger)(nil)

// currencyPrecision maps balance types to their minor unit precision.
var currencyPrecision = map[string]int{
	"EUR":  2,
	"USD":  2,
	"GBP":  2,
	"CAD":  2,
	"SEK":  2,
	"JPY":  0,
	"USDT": 6,
	"BTC":  8,
}

const defaultPrecision = 2

// Ledger implements store.BalanceLedger backed by a Formance Stack ledger.
// Player wallets live at users:{userId}; the house account is the
// counterparty of every bet and payout.
type Ledger struct {
	client *v3.Formance
	ledger string
	users  store.UserDirectory
}

// NewLedger connects to the stack, creates the ledger if it doesn't already
// exist, and returns ready to use. users resolves the default balance type of
// mutations that carry no override.
func NewLedger(ctx context.Context, cfg models.FormanceConfig, users store.UserDirectory) (*Ledger, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if users == nil {
		return nil, fmt.Errorf("formance ledger requires a user directory")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "provider-wallets"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithClient(&httpClient),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	l := &Ledger{client: client, ledger: cfg.LedgerName, users: users}

	if err := l.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance ledger initialized", zap.String("ledger", cfg.LedgerName))
	return l, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (l *Ledger) ensureLedger(ctx context.Context) error {
	_, err := l.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: l.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "provider-integrity",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", l.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", l.ledger))
	return nil
}

// Close is a no-op for the Formance backend.
func (l *Ledger) Close() {}

// ---------- helpers ----------

func precisionFor(balanceType string) int {
	if p, ok := currencyPrecision[balanceType]; ok {
		return p
	}
	return defaultPrecision
}

// formanceAsset returns the Formance UMN notation, e.g. "EUR/2".
func formanceAsset(balanceType string) string {
	return fmt.Sprintf("%s/%d", balanceType, precisionFor(balanceType))
}

func userAccount(userId string) string {
	return "users:" + userId
}

func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}

// isInsufficientFundError checks whether Numscript rejected a send for lack of funds.
func isInsufficientFundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumInsufficientFund
}
