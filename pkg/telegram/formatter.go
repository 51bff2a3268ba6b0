package telegram

import (
	"fmt"
	"time"
)

// FormatScrapeSummary builds the Markdown message sent after a scrape run.
func FormatScrapeSummary(date time.Time, saved, duplicates int) string {
	return fmt.Sprintf(
		"*IBOV Composition Scrape*\nDate: `%s`\nNew assets: *%d*\nDuplicates skipped: %d",
		date.Format("2006-01-02"), saved, duplicates,
	)
}

// FormatRefineSummary builds the Markdown message sent after a refinement run.
func FormatRefineSummary(processed, saved, buy, hold, sell int) string {
	return fmt.Sprintf(
		"*Dataset Refinement*\nProcessed: %d\nSaved: *%d*\nBUY: %d | HOLD: %d | SELL: %d",
		processed, saved, buy, hold, sell,
	)
}

// FormatTrainSummary builds the Markdown message sent after a training run.
func FormatTrainSummary(version string, accuracy, f1 float64) string {
	return fmt.Sprintf(
		"*Model Trained*\nVersion: `%s`\nAccuracy: *%.2f%%*\nF1: %.4f",
		version, accuracy*100, f1,
	)
}
