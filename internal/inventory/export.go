package inventory

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet   = "Stock"
	exportMaxRows = 50000
)

var exportHeaders = []string{"Warehouse", "Warehouse Name", "SKU", "Product", "Unit", "Quantity", "Reorder Level", "Avg Cost", "Value", "Low Stock", "Updated At"}

// Export writes the stock list matching filter as an xlsx workbook.
func (s *Service) Export(ctx context.Context, filter StockFilter, w io.Writer) (int, error) {
	filter.Page = 1
	filter.Limit = exportMaxRows
	items, _, err := s.repo.ListStock(ctx, filter)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return 0, err
	}
	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return 0, err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return 0, err
	}

	for r, it := range items {
		row := []any{
			it.WarehouseCode,
			it.WarehouseName,
			it.SKU,
			it.ProductName,
			it.Unit,
			it.Quantity,
			it.ReorderLevel,
			it.AvgCost.InexactFloat64(),
			it.Value().InexactFloat64(),
			yesNo(it.LowStock),
			it.UpdatedAt.Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return 0, fmt.Errorf("inventory: export row %d: %w", r+2, err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", lastCol, 16); err != nil {
		return 0, err
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return 0, err
	}
	if _, err := f.WriteTo(w); err != nil {
		return 0, err
	}
	return len(items), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
