// Package export renders report rows as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/hamed0406/storemonitor/internal/domain"
)

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat maps "" to CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", CSV:
		return CSV, nil
	case XLSX:
		return XLSX, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename is the attachment name for a report.
func (f Format) Filename(reportID string) string {
	return "report_" + reportID + "." + string(f)
}

var Header = []string{
	"store_id",
	"uptime_last_hour",
	"uptime_last_day",
	"uptime_last_week",
	"downtime_last_hour",
	"downtime_last_day",
	"downtime_last_week",
}

func Write(w io.Writer, f Format, rows []domain.ReportRow) error {
	if f == XLSX {
		return WriteXLSX(w, rows)
	}
	return WriteCSV(w, rows)
}

func WriteCSV(w io.Writer, rows []domain.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			string(r.StoreID),
			strconv.Itoa(r.UptimeLastHourMinutes),
			formatHours(r.UptimeLastDayHours),
			formatHours(r.UptimeLastWeekHours),
			strconv.Itoa(r.DowntimeLastHourMinutes),
			formatHours(r.DowntimeLastDayHours),
			formatHours(r.DowntimeLastWeekHours),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatHours(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

const sheetName = "report"

func WriteXLSX(w io.Writer, rows []domain.ReportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			string(r.StoreID),
			r.UptimeLastHourMinutes,
			r.UptimeLastDayHours,
			r.UptimeLastWeekHours,
			r.DowntimeLastHourMinutes,
			r.DowntimeLastDayHours,
			r.DowntimeLastWeekHours,
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
