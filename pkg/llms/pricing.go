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

package llms

import "log/slog"

type modelPrice struct {
	inputPerMillion  float64
	outputPerMillion float64
}

// USD per 1M tokens.
var priceTable = map[string]modelPrice{
	"gpt-4o-mini":            {inputPerMillion: 0.15, outputPerMillion: 0.60},
	"gpt-4o":                 {inputPerMillion: 2.50, outputPerMillion: 10.00},
	"text-embedding-3-small": {inputPerMillion: 0.02},
	"text-embedding-3-large": {inputPerMillion: 0.13},
}

// Cost returns the USD cost of a call. Unknown models cost zero so a
// model rollout never breaks accounting.
func Cost(model string, promptTokens, completionTokens int) float64 {
	price, ok := priceTable[model]
	if !ok {
		slog.Warn("No pricing for model, recording zero cost", "model", model)
		return 0
	}
	return float64(promptTokens)/1_000_000*price.inputPerMillion +
		float64(completionTokens)/1_000_000*price.outputPerMillion
}
