// Copyright 2025 Kadir Pekel
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

package llms

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for prompt budgeting before a
// request is sent. Vendor usage reported in Response.Usage stays
// authoritative after the fact.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	// Cache encodings to avoid repeated initialization
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for a specific model. Models without
// a known encoding fall back to cl100k_base.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count for text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}

// CountRequest estimates the total prompt tokens for a request,
// including per-message format overhead.
func (tc *TokenCounter) CountRequest(req *Request) int {
	tokensPerMessage := 3 // <|start|>role|message<|end|>

	total := 0
	if req.System != "" {
		total += tokensPerMessage + tc.Count(req.System)
	}
	for _, msg := range req.Messages {
		total += tokensPerMessage
		total += tc.Count(msg.Role)
		total += tc.Count(msg.Content)
	}

	// Every reply is primed with <|start|>assistant<|message|>
	total += 3

	return total
}

// FillEstimate backfills usage fields a vendor response left at zero and
// recomputes the total. Reported counts are never overwritten.
func (tc *TokenCounter) FillEstimate(req *Request, text string, u *Usage) {
	if tc == nil {
		return
	}
	if u.InputTokens == 0 {
		u.InputTokens = tc.CountRequest(req)
	}
	if u.OutputTokens == 0 && text != "" {
		u.OutputTokens = tc.Count(text)
	}
	u.TotalTokens = u.InputTokens + u.OutputTokens
}
