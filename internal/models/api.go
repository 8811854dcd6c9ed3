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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider response codes shared by every provider profile
const (
	CodeOK            = "OK"
	CodeCannotProcess = "CANNOT_PROCESS"
	CodeInFlight      = "IN_FLIGHT"
)

// ProviderResponse is what the engine hands back to the callback boundary
type ProviderResponse struct {
	Success       bool            `json:"success"`
	UserId        string          `json:"user_id,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency,omitempty"`
	TransactionId string          `json:"transaction_id,omitempty"`
	Code          string          `json:"code"`
	Message       string          `json:"message,omitempty"`
}

// UserBalance represents a user's balance for a specific balance type
type UserBalance struct {
	BalanceType string          `json:"balance_type"`
	Balance     decimal.Decimal `json:"balance"`
}

// TransactionRecord represents a transaction in the user's history
type TransactionRecord struct {
	Id          string          `json:"id"`
	Type        string          `json:"type"` // "bet", "win", "refund", "rollback", "deposit"
	BalanceType string          `json:"balance_type"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference,omitempty"`
	Status      string          `json:"status"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Closeout summarises a finished round for history consumers
type Closeout struct {
	Provider           string          `json:"provider"`
	ExternalIdentifier string          `json:"external_identifier"`
	UserId             string          `json:"user_id"`
	GameIdentifier     string          `json:"game_identifier"`
	BalanceType        string          `json:"balance_type"`
	BetAmount          decimal.Decimal `json:"bet_amount"`
	PayAmount          decimal.Decimal `json:"pay_amount"`
	Profit             decimal.Decimal `json:"profit"`
	ClosedAt           time.Time       `json:"closed_at"`
}
