// Package export renders cost-attribution reports from the ledger as XLSX
// workbooks for finance review.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/ledger"
)

// Service is a tiny façade over the ledger that produces XLSX bytes.
type Service struct {
	ledger *ledger.Ledger
	log    *slog.Logger
}

func NewService(led *ledger.Ledger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: led, log: logger}
}

// CostReportXLSX returns a workbook with one sheet per aggregation dimension
// (document, tenant, provider) for the given window.
func (s *Service) CostReportXLSX(w ledger.Window) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()

	dims := []struct {
		sheet string
		dim   ledger.Dimension
	}{
		{"By Document", ledger.ByDocument},
		{"By Tenant", ledger.ByTenant},
		{"By Provider", ledger.ByProvider},
	}

	for i, d := range dims {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", d.sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(d.sheet); err != nil {
			return nil, err
		}

		headers := []string{"Key", "Attempts", "Input Tokens", "Output Tokens", "Cost (USD)", "Latency (ms)"}
		for col, h := range headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(d.sheet, cell, h); err != nil {
				return nil, err
			}
		}

		row := 2
		for _, rec := range s.ledger.Aggregate(w, d.dim) {
			values := []any{
				rec.Key,
				rec.Attempts,
				rec.InputTokens,
				rec.OutputTokens,
				rec.Cost,
				rec.Latency.Milliseconds(),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(d.sheet, cell, v); err != nil {
					return nil, err
				}
			}
			row++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.log.Info("export.cost_report.ok",
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
