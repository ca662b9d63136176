// Copyright 2025 The Inquiro Authors
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

// Package llms defines the chat-completion capability used by the
// research pipeline and its OpenAI implementation.
package llms

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a single chat completion call. Model overrides
// the provider default when set.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	JSONResponse bool
}

// ChatResponse carries the completion plus usage and cost accounting.
type ChatResponse struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Duration         time.Duration
}

func (r *ChatResponse) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Provider is the chat-completion capability.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ModelName() string
	Close() error
}
