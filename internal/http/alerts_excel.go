package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"posture-monitor/internal/models"

	"github.com/xuri/excelize/v2"
)

// AlertsExportHeader 告警导出表头
var AlertsExportHeader = []string{
	"Alert ID",
	"Patient ID",
	"Patient Name",
	"Position",
	"Duration (s)",
	"Type",
	"Alert Time",
	"Video Time",
	"Status",
	"Acknowledged By",
	"Acknowledged At",
	"Analysis Result",
}

const alertsSheet = "Alerts"

// GenerateAlertsExport 生成告警导出 Excel 文件；alerts 为空时只有表头
func GenerateAlertsExport(alerts []*models.Alert) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(alertsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE9E7"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AlertsExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(alertsSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(AlertsExportHeader))
	if err := f.SetCellStyle(alertsSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(alertsSheet, "A", lastCol, 20); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, alert := range alerts {
		row := i + 2 // 第1行是表头
		for col, value := range alertRow(alert) {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(alertsSheet, cell, value); err != nil {
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(alertsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func alertRow(a *models.Alert) []any {
	ackBy, ackAt := "", ""
	if a.AcknowledgedBy != nil {
		ackBy = *a.AcknowledgedBy
	}
	if a.AcknowledgedAt != nil {
		ackAt = a.AcknowledgedAt.Format(time.RFC3339)
	}
	return []any{
		a.ID,
		a.PatientID,
		a.PatientName,
		a.Position,
		a.HeldDuration,
		a.Type,
		a.Timestamp.Format(time.RFC3339),
		models.FormatTimestamp(a.SourceTime),
		a.Status,
		ackBy,
		ackAt,
		a.AnalysisResult,
	}
}
