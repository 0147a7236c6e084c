// Package export renders booking data to xlsx files for sharing outside the
// app, one file per request under the configured export directory.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"toolshed/internal/domain"
	"toolshed/internal/models"
)

const (
	fillFree      = "#C6EFCE"
	fillBooked    = "#FFEB9C"
	fillActive    = "#FFC7CE"
	fillHeader    = "#DDEBF7"
	fillRowHeader = "#E2EFDA"
)

type Exporter struct {
	store  domain.Store
	path   string
	logger *zerolog.Logger
}

func NewExporter(store domain.Store, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, path: path, logger: logger}
}

// LoanSchedule writes a day-by-day grid, one row per resource, one column
// per day in [startDate, endDate]. Returns the written file path.
func (e *Exporter) LoanSchedule(ctx context.Context, resources []models.Resource, startDate, endDate time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	if endDate.Before(startDate) {
		return "", fmt.Errorf("end date %s is before start date %s",
			endDate.Format("2006-01-02"), startDate.Format("2006-01-02"))
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Loan schedule"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheet, "A1", fmt.Sprintf("Period: %s to %s",
		startDate.Format("Jan 2, 2006"), endDate.Format("Jan 2, 2006")))

	dayColumns := e.writeDayHeaders(f, sheet, startDate, endDate)
	e.writeResourceHeaders(f, sheet, resources)

	for row, resource := range resources {
		bookings, err := e.store.ListBookingsForResource(ctx, resource.ID)
		if err != nil {
			return "", fmt.Errorf("failed to list bookings for %s: %w", resource.ID, err)
		}
		e.writeResourceRow(f, sheet, row+3, bookings, startDate, dayColumns)
	}

	_ = f.SetColWidth(sheet, "A", "A", 25)
	if len(dayColumns) > 0 {
		lastCol, _ := excelize.ColumnNumberToName(len(dayColumns) + 1)
		_ = f.SetColWidth(sheet, "B", lastCol, 18)
		_ = f.MergeCell(sheet, "A1", lastCol+"1")
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%s_to_%s.xlsx",
		startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("failed to save export: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("loan schedule exported")
	return filePath, nil
}

func (e *Exporter) writeDayHeaders(f *excelize.File, sheet string, startDate, endDate time.Time) map[string]int {
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{fillHeader}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	columns := make(map[string]int)
	col := 2
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheet, cell, day.Format("Jan 2"))
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
		columns[day.Format("2006-01-02")] = col
		col++
	}
	return columns
}

func (e *Exporter) writeResourceHeaders(f *excelize.File, sheet string, resources []models.Resource) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillRowHeader}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, resource := range resources {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(sheet, cell, resource.Name)
		_ = f.SetCellStyle(sheet, cell, cell, style)
	}
}

func (e *Exporter) writeResourceRow(f *excelize.File, sheet string, row int, bookings []models.Booking, startDate time.Time, dayColumns map[string]int) {
	for dayKey, col := range dayColumns {
		day, err := time.Parse("2006-01-02", dayKey)
		if err != nil {
			continue
		}
		dayStart := day
		dayEnd := day.AddDate(0, 0, 1)

		var value string
		fill := fillFree
		for _, b := range bookings {
			if b.Status == models.BookingCancelled || !b.Overlaps(dayStart, dayEnd) {
				continue
			}
			value += fmt.Sprintf("%s %s\n", statusLabel(b.Status), b.RequesterID)
			if b.Purpose != "" {
				value += "  " + b.Purpose + "\n"
			}
			if b.Status == models.BookingActive {
				fill = fillActive
			} else if fill == fillFree {
				fill = fillBooked
			}
		}
		if value == "" {
			value = "free"
		}

		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, value)

		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
			Alignment: &excelize.Alignment{
				Horizontal: "left",
				Vertical:   "top",
				WrapText:   true,
			},
		})
		if err == nil {
			_ = f.SetCellStyle(sheet, cell, cell, style)
		}
	}
}

// UserBookings writes a flat sheet of one user's bookings, newest first in
// the order given.
func (e *Exporter) UserBookings(_ context.Context, userID string, bookings []models.Booking) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Bookings"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Resource", "Start", "End", "Status", "Purpose", "Pickup location", "Return condition"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillHeader}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
		_ = f.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for i, b := range bookings {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), b.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), b.ResourceID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), b.StartTime.Format("2006-01-02 15:04"))
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), b.EndTime.Format("2006-01-02 15:04"))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), string(b.Status))
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), b.Purpose)
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), b.PickupLocation)
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), b.ReturnCondition)
	}

	_ = f.SetColWidth(sheet, "A", "B", 30)
	_ = f.SetColWidth(sheet, "C", "D", 18)
	_ = f.SetColWidth(sheet, "E", "H", 20)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_%s_%s.xlsx", userID, time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("failed to save export: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Str("user_id", userID).Msg("user bookings exported")
	return filePath, nil
}

func statusLabel(status models.BookingStatus) string {
	switch status {
	case models.BookingActive:
		return "[out]"
	case models.BookingCompleted:
		return "[done]"
	case models.BookingConfirmed:
		return "[booked]"
	default:
		return "[?]"
	}
}
