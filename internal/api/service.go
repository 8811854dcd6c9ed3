/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"
	"sort"
	"time"

	"provider-integrity-go/internal/engine"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/providers"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Wallet is the read side of the balance ledger.
type Wallet interface {
	GetBalance(ctx context.Context, userId, balanceType string) (decimal.Decimal, error)
	GetAllUserBalances(ctx context.Context, userId string) ([]models.AccountBalance, error)
}

// TransactionHistory is implemented by ledgers that can list past mutations.
type TransactionHistory interface {
	GetTransactionHistory(ctx context.Context, userId, balanceType string, limit, offset int) ([]models.Transaction, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type route struct {
	profile      providers.Profile
	orchestrator *engine.Orchestrator
}

// CallbackService routes provider callbacks to one orchestrator per provider
type CallbackService struct {
	routes map[string]route
	wallet Wallet
	db     Pinger
}

// DependenciesFunc wires the orchestrator of one provider.
type DependenciesFunc func(provider string) engine.Dependencies

// NewCallbackService builds an orchestrator for every enabled provider in the
// registry.
func NewCallbackService(registry *providers.Registry, depsFor DependenciesFunc, wallet Wallet, db Pinger) (*CallbackService, error) {
	if registry == nil || depsFor == nil || wallet == nil || db == nil {
		return nil, fmt.Errorf("registry, dependencies, wallet and db are required")
	}

	s := &CallbackService{routes: make(map[string]route), wallet: wallet, db: db}
	for _, name := range registry.Names() {
		profile, err := registry.Get(name)
		if err != nil {
			return nil, err
		}
		orch, err := engine.NewOrchestrator(profile, depsFor(name))
		if err != nil {
			return nil, fmt.Errorf("unable to build orchestrator for %s: %w", name, err)
		}
		s.routes[name] = route{profile: profile, orchestrator: orch}
	}

	zap.L().Info("Callback service ready", zap.Strings("providers", registry.Names()))
	return s, nil
}

// Providers lists the providers this service accepts callbacks for.
func (s *CallbackService) Providers() []string {
	names := make([]string, 0, len(s.routes))
	for name := range s.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleCallback runs one raw provider callback through its orchestrator and
// renders the provider-native reply body. The engine error, if any, is
// returned alongside the body it was rendered into.
func (s *CallbackService) HandleCallback(ctx context.Context, provider, action string, raw []byte) ([]byte, *models.ProviderResponse, error) {
	r, ok := s.routes[provider]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", engine.ErrUnknownProvider, provider)
	}

	resp, handleErr := r.orchestrator.HandleProviderEvent(ctx, action, raw)
	body, err := r.profile.Render(resp, handleErr)
	if err != nil {
		return nil, resp, fmt.Errorf("unable to render %s reply: %w", provider, err)
	}
	return body, resp, handleErr
}

// Reply handles a bus message and builds the reply published for it.
func (s *CallbackService) Reply(ctx context.Context, msg models.CallbackMessage, source string) models.CallbackReply {
	ctx = models.WithCallbackContext(ctx, &models.CallbackContext{
		RequestId: msg.RequestId,
		Provider:  msg.Provider,
		Source:    source,
	})

	start := time.Now()
	body, resp, err := s.HandleCallback(ctx, msg.Provider, msg.Action, msg.Payload)

	reply := models.CallbackReply{
		RequestId: msg.RequestId,
		Provider:  msg.Provider,
		Response:  resp,
		Body:      body,
	}
	if err != nil {
		reply.Error = err.Error()
	}

	zap.L().Debug("Callback handled",
		zap.String("request_id", msg.RequestId),
		zap.String("provider", msg.Provider),
		zap.String("action", msg.Action),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("error", err != nil))
	return reply
}

func (s *CallbackService) HealthCheck(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
