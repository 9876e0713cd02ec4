package apihttp

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

const dateLayout = "2006-01-02"

var reportHeader = []string{"plan_id", "line", "product", "plan_date", "plan_qty", "actual_qty", "progress", "updated_at"}

func reportRecord(row ProductionRow) []string {
	return []string{
		formatInt64(row.PlanID),
		row.LineCode,
		row.Product,
		row.PlanDate.Format(dateLayout),
		formatInt64(row.PlanQty),
		formatInt64(row.ActualQty),
		fmt.Sprintf("%.1f", row.Progress),
		formatTime(row.UpdatedAt),
	}
}

// BuildProductionCSV renders the report as CSV.
func BuildProductionCSV(rows []ProductionRow) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := writer.Write(reportRecord(row)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildProductionXLSX renders the report with a summary sheet and a plans sheet.
func BuildProductionXLSX(rows []ProductionRow, from, to time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	plansSheet := "plans"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(plansSheet); err != nil {
		return nil, err
	}

	var planned, actual int64
	for _, row := range rows {
		planned += row.PlanQty
		actual += row.ActualQty
	}
	_ = f.SetCellValue(summarySheet, "A1", "Production Report")
	_ = f.SetCellValue(summarySheet, "A3", "From")
	_ = f.SetCellValue(summarySheet, "B3", from.Format(dateLayout))
	_ = f.SetCellValue(summarySheet, "A4", "To")
	_ = f.SetCellValue(summarySheet, "B4", to.Format(dateLayout))
	_ = f.SetCellValue(summarySheet, "A5", "Plans")
	_ = f.SetCellValue(summarySheet, "B5", len(rows))
	_ = f.SetCellValue(summarySheet, "A6", "Planned Qty")
	_ = f.SetCellValue(summarySheet, "B6", planned)
	_ = f.SetCellValue(summarySheet, "A7", "Actual Qty")
	_ = f.SetCellValue(summarySheet, "B7", actual)
	_ = f.SetCellValue(summarySheet, "A8", "Progress (%)")
	_ = f.SetCellValue(summarySheet, "B8", progress(actual, planned))

	for i, title := range []string{"Date", "Line", "Product", "Plan Qty", "Actual Qty", "Progress (%)"} {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(plansSheet, cell, title)
	}
	for i, row := range rows {
		r := i + 2
		_ = f.SetCellValue(plansSheet, fmt.Sprintf("A%d", r), row.PlanDate.Format(dateLayout))
		_ = f.SetCellValue(plansSheet, fmt.Sprintf("B%d", r), row.LineCode)
		_ = f.SetCellValue(plansSheet, fmt.Sprintf("C%d", r), row.Product)
		_ = f.SetCellValue(plansSheet, fmt.Sprintf("D%d", r), row.PlanQty)
		_ = f.SetCellValue(plansSheet, fmt.Sprintf("E%d", r), row.ActualQty)
		_ = f.SetCellValue(plansSheet, fmt.Sprintf("F%d", r), row.Progress)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildProductionPDF renders the report as a single table.
func BuildProductionPDF(rows []ProductionRow, from, to time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Production Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", from.Format(dateLayout), to.Format(dateLayout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Plans: %d", len(rows)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(28, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(22, 6, "Line", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Product", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Plan", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Actual", "1", 0, "C", false, 0, "")
	pdf.CellFormat(26, 6, "Progress", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(28, 6, row.PlanDate.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(22, 6, row.LineCode, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, row.Product, "1", 0, "L", false, 0, "")
		pdf.CellFormat(28, 6, formatInt64(row.PlanQty), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, formatInt64(row.ActualQty), "1", 0, "R", false, 0, "")
		pdf.CellFormat(26, 6, fmt.Sprintf("%.1f%%", row.Progress), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
