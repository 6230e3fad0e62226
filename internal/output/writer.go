// Package output writes crawl results to CSV, JSON and Excel files and
// publishes them to downstream sinks.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/cashback-intel/internal/model"
)

// Supported file formats.
const (
	FormatCSV   = "csv"
	FormatJSON  = "json"
	FormatExcel = "xlsx"
)

const stampLayout = "20060102_150405"

// Files lists the paths produced by one Write call. Empty fields were not
// written.
type Files struct {
	CSV     string `json:"csv,omitempty"`
	JSON    string `json:"json,omitempty"`
	Excel   string `json:"xlsx,omitempty"`
	Summary string `json:"summary"`
}

// Summary is the run-level cost report written next to the result files.
type Summary struct {
	IntelligenceLevel      model.Level `json:"intelligence_level"`
	TotalResults           int         `json:"total_results"`
	TotalTokensUsed        int64       `json:"total_tokens_used"`
	TotalAPICalls          int         `json:"total_api_calls"`
	TotalCost              float64     `json:"total_cost"`
	AverageCostPerResult   float64     `json:"average_cost_per_result"`
	Timestamp              string      `json:"timestamp"`
	CompetitiveAnalysisFor string      `json:"competitive_analysis_for"`
}

// Writer persists results under a directory.
type Writer struct {
	dir     string
	formats map[string]bool
	now     func() time.Time
}

// NewWriter creates a Writer for dir. Unknown formats are ignored; an empty
// list means CSV only.
func NewWriter(dir string, formats []string) *Writer {
	w := &Writer{dir: dir, formats: make(map[string]bool), now: time.Now}
	for _, f := range formats {
		switch f = strings.ToLower(strings.TrimSpace(f)); f {
		case FormatCSV, FormatJSON, FormatExcel:
			w.formats[f] = true
		case "excel":
			w.formats[FormatExcel] = true
		default:
			zap.L().Warn("output: ignoring unknown format", zap.String("format", f))
		}
	}
	if len(w.formats) == 0 {
		w.formats[FormatCSV] = true
	}
	return w
}

// Write saves results for one site and level. The summary is always
// written, and comprehensive runs always keep a JSON copy of the full
// analysis.
func (w *Writer) Write(site string, level model.Level, results []*model.ExtractionResult, stats *model.RunStats) (*Files, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "output: create dir")
	}

	now := w.now()
	stamp := now.Format(stampLayout)
	base := filepath.Join(w.dir, fmt.Sprintf("%s_%s_%s", fileSafe(site), level, stamp))
	files := &Files{}

	if w.formats[FormatCSV] {
		files.CSV = base + ".csv"
		if err := writeCSV(files.CSV, level, results); err != nil {
			return nil, err
		}
	}
	if w.formats[FormatJSON] || level == model.LevelComprehensive {
		files.JSON = base + ".json"
		if err := writeJSON(files.JSON, records(level, results)); err != nil {
			return nil, err
		}
	}
	if w.formats[FormatExcel] {
		files.Excel = base + ".xlsx"
		if err := writeExcel(files.Excel, string(level), level, results); err != nil {
			return nil, err
		}
	}

	files.Summary = filepath.Join(w.dir, fmt.Sprintf("%s_%s_summary_%s.json", fileSafe(site), level, stamp))
	sum := Summarize(level, results, stats, now)
	if err := writeJSON(files.Summary, map[string]any{"analysis_summary": sum}); err != nil {
		return nil, err
	}

	zap.L().Info("output: results saved",
		zap.String("site", site),
		zap.String("level", string(level)),
		zap.Int("results", len(results)),
		zap.String("csv", files.CSV),
		zap.String("json", files.JSON),
		zap.String("xlsx", files.Excel),
		zap.String("summary", files.Summary),
	)
	return files, nil
}

// Summarize builds the summary for results. Usage comes from stats when
// present, otherwise from the results themselves.
func Summarize(level model.Level, results []*model.ExtractionResult, stats *model.RunStats, now time.Time) Summary {
	s := Summary{
		IntelligenceLevel:      level,
		TotalResults:           len(results),
		Timestamp:              now.Format(time.RFC3339),
		CompetitiveAnalysisFor: "Pokitpal",
	}
	if stats != nil {
		s.TotalTokensUsed = stats.TokensUsed
		s.TotalAPICalls = stats.APICalls
		s.TotalCost = stats.Cost
	} else {
		for _, r := range results {
			s.TotalTokensUsed += r.TokensUsed
			s.TotalCost += r.Cost
			if r.TokensUsed > 0 {
				s.TotalAPICalls++
			}
		}
	}
	if len(results) > 0 {
		s.AverageCostPerResult = round4(s.TotalCost / float64(len(results)))
	}
	s.TotalCost = round4(s.TotalCost)
	return s
}

func writeCSV(path string, level model.Level, results []*model.ExtractionResult) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "output: create csv")
	}
	defer f.Close() //nolint:errcheck

	cw := csv.NewWriter(f)
	if err := cw.Write(Columns(level)); err != nil {
		return eris.Wrap(err, "output: write csv header")
	}
	for _, r := range results {
		if err := cw.Write(Row(level, r)); err != nil {
			return eris.Wrap(err, "output: write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "output: flush csv")
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: marshal json")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "output: write json")
	}
	return nil
}

func writeExcel(path, sheetName string, level model.Level, results []*model.ExtractionResult) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "output: add sheet")
	}
	addRow(sheet, Columns(level))
	for _, r := range results {
		addRow(sheet, Row(level, r))
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "output: save xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func records(level model.Level, results []*model.ExtractionResult) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		out = append(out, Record(level, r))
	}
	return out
}

func fileSafe(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "results"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
