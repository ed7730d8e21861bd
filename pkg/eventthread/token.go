// Copyright 2025 Helio Display Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package eventthread

import (
	"sync"

	"github.com/google/uuid"
)

// maxRetainedTokens bounds the token lookup window.
const maxRetainedTokens = 128

// FrameToken tags one delivered vsync event so frame tracing tools can
// correlate the wakeup, the expected vsync and the deadline.
type FrameToken struct {
	ID            uuid.UUID
	When          int64
	ExpectedVsync int64
	Deadline      int64
}

// TokenManager issues and retains frame tokens. Retention is bounded;
// lookups of evicted tokens miss.
type TokenManager struct {
	mu     sync.Mutex
	tokens []FrameToken
}

// NewTokenManager creates an empty token manager.
func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate issues a token for one vsync event.
func (m *TokenManager) Generate(when, expectedVsync, deadline int64) FrameToken {
	token := FrameToken{
		ID:            uuid.New(),
		When:          when,
		ExpectedVsync: expectedVsync,
		Deadline:      deadline,
	}

	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	if len(m.tokens) > maxRetainedTokens {
		m.tokens = m.tokens[len(m.tokens)-maxRetainedTokens:]
	}
	m.mu.Unlock()

	return token
}

// Lookup resolves a retained token by id.
func (m *TokenManager) Lookup(id uuid.UUID) (FrameToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.tokens) - 1; i >= 0; i-- {
		if m.tokens[i].ID == id {
			return m.tokens[i], true
		}
	}

	return FrameToken{}, false
}
