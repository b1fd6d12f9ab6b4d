// Package export writes session transcripts to spreadsheets.
package export

import (
	"fmt"
	"time"

	"github.com/tealeg/xlsx"

	"voxflow/internal/app/model"
)

// Header is the first row of the Transcripts sheet.
var Header = []string{
	"Message ID",
	"Created At",
	"Segment",
	"Start",
	"End",
	"Speaker",
	"Text",
	"Method",
	"Category",
	"Error",
}

// ToExcel writes one row per live timeline segment. Messages without a
// structured transcript get a single row with their flat text, and failed
// messages get a row carrying the error code.
func ToExcel(messages []model.Message, outputFilePath string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Transcripts")
	if err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	headerRow := sheet.AddRow()
	for _, h := range Header {
		headerRow.AddCell().Value = h
	}

	for _, msg := range messages {
		created := ""
		if !msg.CreatedAt.IsZero() {
			created = msg.CreatedAt.Format(time.RFC3339)
		}
		addRow := func(segmentID string, start, end float64, speaker, text string) {
			row := sheet.AddRow()
			row.AddCell().Value = msg.ID
			row.AddCell().Value = created
			row.AddCell().Value = segmentID
			row.AddCell().Value = fmt.Sprintf("%.2f", start)
			row.AddCell().Value = fmt.Sprintf("%.2f", end)
			row.AddCell().Value = speaker
			row.AddCell().Value = text
			row.AddCell().Value = msg.TranscriptionMethod
			row.AddCell().Value = msg.Category
			row.AddCell().Value = msg.TranscriptionError
		}

		written := 0
		if msg.Transcription != nil {
			for _, seg := range msg.Transcription.Segments {
				if seg.IsDeleted {
					continue
				}
				addRow(seg.ID, seg.Start, seg.End, seg.Speaker, seg.Text)
				written++
			}
		}
		if written == 0 && (msg.TranscriptionText != "" || msg.TranscriptionError != "") {
			addRow("", 0, msg.Duration, "", msg.TranscriptionText)
		}
	}

	if err := file.Save(outputFilePath); err != nil {
		return fmt.Errorf("failed to save %s: %w", outputFilePath, err)
	}
	return nil
}
