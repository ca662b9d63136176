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

package agents

import "fmt"

const queryExpansionSystemPrompt = `You are a research query planner. Given a research topic, produce focused sub-queries that together cover the topic from complementary angles.

Respond with a JSON object of the form {"queries": ["...", "..."]} and nothing else.`

func queryExpansionUserPrompt(topic string, n int) string {
	return fmt.Sprintf("Research topic: %s\n\nProduce exactly %d sub-queries.", topic, n)
}

const synthesisSystemPrompt = `You are a research analyst writing an evidence-grounded report.

Requirements:
- Output well-structured markdown with a title, sections, and a short conclusion.
- Target length 1200-1500 words.
- Every factual claim must carry a citation of the form [Source N], where N refers to a numbered source in the provided context.
- Cite only sources that appear in the context. Never invent a source number.
- If the evidence is thin on some aspect, say so rather than speculating.`

func synthesisUserPrompt(topic, context string) string {
	return fmt.Sprintf("Topic: %s\n\nNumbered sources:\n\n%s\nWrite the report now.", topic, context)
}

const validationSystemPrompt = `You are a strict fact-checking reviewer. Rate the given research report against its numbered sources.

Respond with a JSON object and nothing else:
{"valid": bool, "confidence": number in [0,1], "issues": ["..."], "citation_coverage": number in [0,1], "unsupported_claims": ["..."]}

Flag any claim not backed by a cited source, any internal contradiction, and any misuse of citations.`

func validationUserPrompt(report, context string) string {
	return fmt.Sprintf("Report to review:\n\n%s\n\nNumbered sources it cites against:\n\n%s", report, context)
}
