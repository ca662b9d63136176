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

package server

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/inquiro-ai/inquiro/pkg/taskstore"
)

// renderPDF produces a simple printable rendition of the report.
// Markdown headings become bold lines; everything else flows as body
// text.
func renderPDF(task *taskstore.TaskRecord, result *taskstore.ResultRecord) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Research Report", false)
	pdf.AddPage()
	translate := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, translate("Research Report"), "", "L", false)

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.MultiCell(0, 5, translate(fmt.Sprintf("Task %s | confidence %.2f", task.TaskID, result.ConfidenceScore)), "", "L", false)
	pdf.Ln(4)
	pdf.SetTextColor(0, 0, 0)

	for _, line := range strings.Split(result.Report, "\n") {
		switch {
		case strings.HasPrefix(line, "#"):
			heading := strings.TrimSpace(strings.TrimLeft(line, "#"))
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 7, translate(heading), "", "L", false)
			pdf.SetFont("Helvetica", "", 10)
		case strings.TrimSpace(line) == "":
			pdf.Ln(3)
		default:
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, translate(line), "", "L", false)
		}
	}

	if len(result.Sources) > 0 {
		pdf.Ln(5)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 7, translate("Sources"), "", "L", false)
		pdf.SetFont("Helvetica", "", 9)
		for _, src := range result.Sources {
			pdf.MultiCell(0, 5, translate(fmt.Sprintf("[%d] %s - %s", src.SourceID, src.Title, src.URL)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
