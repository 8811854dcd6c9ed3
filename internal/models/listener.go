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
	"encoding/json"
	"time"
)

// CallbackMessage is an inbound provider callback carried over the message bus
type CallbackMessage struct {
	RequestId  string          `json:"request_id"`
	Provider   string          `json:"provider"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// CallbackReply is published once a callback message has been handled
type CallbackReply struct {
	RequestId string            `json:"request_id"`
	Provider  string            `json:"provider"`
	Response  *ProviderResponse `json:"response,omitempty"`
	Body      json.RawMessage   `json:"body,omitempty"`
	Error     string            `json:"error,omitempty"`
}
