// Package export renders rooms, their transition history and the metrics
// summary as an Excel workbook.
package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"room-status-backend/internal/metrics"
	"room-status-backend/internal/model"
)

const (
	SheetRooms   = "Rooms"
	SheetHistory = "History"
	SheetSummary = "Summary"
)

// Source is what the export reads.
type Source interface {
	ListRooms(ctx context.Context) ([]model.Room, error)
	RoomHistory(ctx context.Context, roomID int64) ([]model.StatusHistory, error)
}

// Data is everything written to the workbook.
type Data struct {
	Rooms   []model.Room
	History []model.StatusHistory
	Summary metrics.Summary
	Window  metrics.Window
}

// Collect gathers rooms, history within the window bounds and the summary.
func Collect(ctx context.Context, src Source, m *metrics.Engine, w metrics.Window) (Data, error) {
	rooms, err := src.ListRooms(ctx)
	if err != nil {
		return Data{}, fmt.Errorf("list rooms: %w", err)
	}

	var history []model.StatusHistory
	for _, r := range rooms {
		rows, err := src.RoomHistory(ctx, r.ID)
		if err != nil {
			return Data{}, fmt.Errorf("history of room %d: %w", r.ID, err)
		}
		for _, h := range rows {
			if w.Start != nil && h.Timestamp.Before(*w.Start) {
				continue
			}
			if w.End != nil && h.Timestamp.After(*w.End) {
				continue
			}
			history = append(history, h)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Timestamp.Equal(history[j].Timestamp) {
			return history[i].ID < history[j].ID
		}
		return history[i].Timestamp.Before(history[j].Timestamp)
	})

	summary, err := m.Summary(ctx, w)
	if err != nil {
		return Data{}, fmt.Errorf("summary: %w", err)
	}
	return Data{Rooms: rooms, History: history, Summary: summary, Window: w}, nil
}

// Workbook renders d as xlsx bytes.
func Workbook(d Data) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetRooms); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetHistory, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	roomNames := make(map[int64]string, len(d.Rooms))
	roomRows := make([][]any, 0, len(d.Rooms))
	for _, r := range d.Rooms {
		roomNames[r.ID] = r.Name
		roomRows = append(roomRows, []any{r.ID, r.Name, r.Status.String(), r.UpdatedAt.UTC().Format(time.RFC3339)})
	}
	if err := writeTable(f, SheetRooms, headerStyle, []string{"Room ID", "Name", "Status", "Updated At"}, roomRows); err != nil {
		return nil, err
	}

	historyRows := make([][]any, 0, len(d.History))
	for _, h := range d.History {
		historyRows = append(historyRows, []any{
			h.Timestamp.UTC().Format(time.RFC3339), h.RoomID, roomNames[h.RoomID],
			h.OldStatus.String(), h.NewStatus.String(), h.Source.String(),
		})
	}
	if err := writeTable(f, SheetHistory, headerStyle,
		[]string{"Timestamp", "Room ID", "Room", "Old Status", "New Status", "Source"}, historyRows); err != nil {
		return nil, err
	}

	s := d.Summary
	summaryRows := [][]any{
		{"Window Start", boundLabel(d.Window.Start)},
		{"Window End", boundLabel(d.Window.End)},
		{"Avg Wait", metrics.FormatMMSS(s.AvgWaitSeconds)},
		{"Avg Provider", metrics.FormatMMSS(s.AvgProviderSeconds)},
		{"Avg Cleaning", metrics.FormatMMSS(s.AvgCleaningSeconds)},
		{"Turnovers", s.Turnovers},
		{"Stuck Rooms", len(s.StuckRoomIDs)},
	}
	if err := writeTable(f, SheetSummary, headerStyle, []string{"Metric", "Value"}, summaryRows); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func boundLabel(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func writeTable(f *excelize.File, sheet string, headerStyle int, headers []string, rows [][]any) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s!%s: %w", sheet, cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to style header %s!%s: %w", sheet, cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, 20); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
