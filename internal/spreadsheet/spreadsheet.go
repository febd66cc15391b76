// Package spreadsheet exports a product's variant matrix to XLSX and applies
// edited price, quantity and image cells back onto it.
package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/yxshee/marketplace-storefront/internal/variants"
)

const SheetName = "Variants"

const (
	headerSKU      = "sku"
	headerPrice    = "price_cents"
	headerQuantity = "quantity"
	headerImageURL = "image_url"
)

var (
	ErrInvalidWorkbook  = errors.New("invalid variant workbook")
	ErrMissingSKUColumn = errors.New("variant workbook has no sku column")
)

// editableColumns maps accepted header spellings onto variant fields.
var editableColumns = map[string]variants.Field{
	headerPrice:    variants.FieldPrice,
	"price":        variants.FieldPrice,
	headerQuantity: variants.FieldQuantity,
	"qty":          variants.FieldQuantity,
	headerImageURL: variants.FieldImageURL,
	"image":        variants.FieldImageURL,
}

// Export writes one row per variant: SKU, one column per active attribute,
// then price, quantity and image URL.
func Export(w io.Writer, attributes []variants.Attribute, rows []variants.Variant) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	active := variants.ActiveAttributes(attributes)
	headers := make([]string, 0, len(active)+4)
	headers = append(headers, headerSKU)
	for _, attribute := range active {
		headers = append(headers, attribute.DisplayName)
	}
	headers = append(headers, headerPrice, headerQuantity, headerImageURL)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	readOnlyStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"EDEDED"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, header); err != nil {
			return err
		}
		column, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SheetName, column, column, 20)
	}
	first, _ := excelize.CoordinatesToCellName(1, 1)
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(SheetName, first, last, headerStyle); err != nil {
		return err
	}

	for r, variant := range rows {
		row := r + 2
		values := make([]interface{}, 0, len(headers))
		values = append(values, variant.SKUCode)
		for _, attribute := range active {
			values = append(values, selectionValue(variant, attribute.KeyName))
		}
		values = append(values, variant.PriceCents, variant.Quantity, variant.ImageURL)

		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			return err
		}
		end, _ := excelize.CoordinatesToCellName(len(active)+1, row)
		_ = f.SetCellStyle(SheetName, start, end, readOnlyStyle)
	}

	_, err = f.WriteTo(w)
	return err
}

func selectionValue(variant variants.Variant, keyName string) string {
	for _, selection := range variant.Selections {
		if selection.KeyName == keyName {
			return selection.Value
		}
	}
	return ""
}

// RowError describes a cell that could not be applied.
type RowError struct {
	Row     int    `json:"row"`
	SKU     string `json:"sku"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// Report summarizes an import.
type Report struct {
	Updated     int        `json:"updated"`
	UnknownSKUs []string   `json:"unknown_skus"`
	Errors      []RowError `json:"errors"`
}

// Import applies the workbook's price, quantity and image cells to current.
// Rows whose SKU is not in current are skipped, blank cells leave the field
// as is, and invalid cells are reported without stopping the import.
func Import(r io.Reader, current []variants.Variant) ([]variants.Variant, Report, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return current, Report{}, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return current, Report{}, ErrInvalidWorkbook
	}
	sheetName := sheets[0]
	for _, name := range sheets {
		if strings.EqualFold(name, SheetName) {
			sheetName = name
			break
		}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return current, Report{}, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	if len(rows) == 0 {
		return current, Report{}, ErrMissingSKUColumn
	}

	skuColumn := -1
	var columns []editableColumn
	for i, header := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(header))
		if name == headerSKU {
			skuColumn = i
			continue
		}
		if field, ok := editableColumns[name]; ok {
			columns = append(columns, editableColumn{index: i, header: strings.TrimSpace(header), field: field})
		}
	}
	if skuColumn < 0 {
		return current, Report{}, ErrMissingSKUColumn
	}

	known := make(map[string]variants.Variant, len(current))
	for _, variant := range current {
		known[variant.SKUCode] = variant
	}

	report := Report{UnknownSKUs: []string{}, Errors: []RowError{}}
	updated := current
	for index, row := range rows[1:] {
		sku := cell(row, skuColumn)
		if sku == "" {
			continue
		}
		existing, ok := known[sku]
		if !ok {
			report.UnknownSKUs = append(report.UnknownSKUs, sku)
			continue
		}

		changed := false
		for _, column := range columns {
			value := cell(row, column.index)
			if value == "" || value == currentValue(existing, column.field) {
				continue
			}
			next, found, err := variants.UpdateField(updated, sku, column.field, value)
			if err != nil {
				report.Errors = append(report.Errors, RowError{
					Row:     index + 2,
					SKU:     sku,
					Column:  column.header,
					Message: err.Error(),
				})
				continue
			}
			if found {
				updated = next
				changed = true
			}
		}
		if changed {
			report.Updated++
		}
	}
	return updated, report, nil
}

type editableColumn struct {
	index  int
	header string
	field  variants.Field
}

func cell(row []string, column int) string {
	if column >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[column])
}

func currentValue(variant variants.Variant, field variants.Field) string {
	switch field {
	case variants.FieldPrice:
		return strconv.FormatInt(variant.PriceCents, 10)
	case variants.FieldQuantity:
		return strconv.FormatInt(int64(variant.Quantity), 10)
	case variants.FieldImageURL:
		return variant.ImageURL
	default:
		return ""
	}
}
