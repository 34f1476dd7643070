package services

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ekaya-inc/risk-register/pkg/models"
)

// RiskExportSheet is the worksheet name used in exported workbooks.
const RiskExportSheet = "Risk Register"

const exportDateLayout = "2006-01-02"

// riskExportColumns defines the exported columns, in order.
var riskExportColumns = []struct {
	header string
	width  float64
	value  func(r *models.Risk) any
}{
	{"ID", 38, func(r *models.Risk) any { return r.ID.String() }},
	{"Title", 40, func(r *models.Risk) any { return r.Title }},
	{"Description", 50, func(r *models.Risk) any { return r.Description }},
	{"Category", 18, func(r *models.Risk) any { return string(r.Category) }},
	{"Probability", 12, func(r *models.Risk) any { return r.Probability }},
	{"Impact", 10, func(r *models.Risk) any { return r.Impact }},
	{"Score", 10, func(r *models.Risk) any { return r.Score }},
	{"Level", 12, func(r *models.Risk) any { return string(r.Level) }},
	{"Consequences", 40, func(r *models.Risk) any { return r.Consequences }},
	{"Action Plan", 40, func(r *models.Risk) any { return r.ActionPlan }},
	{"Identified", 14, func(r *models.Risk) any { return r.IdentifiedAt.Format(exportDateLayout) }},
	{"Due", 14, func(r *models.Risk) any {
		if r.DueAt == nil {
			return ""
		}
		return r.DueAt.Format(exportDateLayout)
	}},
	{"Owner", 20, func(r *models.Risk) any { return r.Owner }},
	{"Status", 14, func(r *models.Risk) any { return string(r.Status) }},
	{"Notes", 40, func(r *models.Risk) any { return r.Notes }},
}

// RiskExporter renders the register as a spreadsheet.
type RiskExporter interface {
	// Export returns an XLSX workbook of the risks matching filter.
	Export(ctx context.Context, filter *models.RiskFilter) ([]byte, error)
}

type riskExporter struct {
	risks  RiskService
	logger *zap.Logger
}

// NewRiskExporter creates an exporter that reads through the risk service.
func NewRiskExporter(risks RiskService, logger *zap.Logger) RiskExporter {
	return &riskExporter{
		risks:  risks,
		logger: logger.Named("risk-export"),
	}
}

var _ RiskExporter = (*riskExporter)(nil)

func (e *riskExporter) Export(ctx context.Context, filter *models.RiskFilter) ([]byte, error) {
	risks, err := e.risks.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	data, err := RenderRiskWorkbook(risks)
	if err != nil {
		e.logger.Error("Failed to render risk workbook", zap.Int("rows", len(risks)), zap.Error(err))
		return nil, err
	}
	return data, nil
}

// RenderRiskWorkbook writes risks to a single-sheet XLSX workbook with a
// styled, frozen header row.
func RenderRiskWorkbook(risks []*models.Risk) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), RiskExportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range riskExportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(RiskExportSheet, cell, col.header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(RiskExportSheet, name, name, col.width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(riskExportColumns), 1)
	if err := f.SetCellStyle(RiskExportSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for rowIdx, risk := range risks {
		row := rowIdx + 2
		values := make([]any, len(riskExportColumns))
		for i, col := range riskExportColumns {
			values[i] = col.value(risk)
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(RiskExportSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	if err := f.SetPanes(RiskExportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header row: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
