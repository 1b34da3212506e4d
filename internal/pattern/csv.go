package pattern

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// csvHeader is the fixed column order of the pattern file. The file is
// user-editable; Load and Save must round-trip it losslessly.
var csvHeader = []string{"ID", "OS", "Kind", "Expression", "Description", "Enabled"}

// Load reads patterns from a CSV file and validates every expression.
// An invalid expression fails the whole load with a SyntaxError so that bad
// patterns are rejected before a run starts, never discovered mid-scan.
func Load(path string) ([]Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patterns file: %w", err)
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) ([]Pattern, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read patterns header: %w", err)
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, fmt.Errorf("patterns file: column %d is %q, want %q", i, header[i], col)
		}
	}

	var patterns []Pattern
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read patterns row: %w", err)
		}

		p := Pattern{
			ID:          strings.TrimSpace(row[0]),
			OS:          strings.TrimSpace(row[1]),
			Kind:        Kind(strings.TrimSpace(row[2])),
			Expression:  row[3],
			Description: row[4],
			Enabled:     parseEnabled(row[5]),
		}
		if p.ID == "" {
			return nil, fmt.Errorf("patterns file: row with empty ID")
		}
		if err := p.Compile(); err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}

	return patterns, nil
}

// Save writes patterns back to the CSV file. An existing file is kept as a
// .csv_bak copy before it is overwritten.
func Save(path string, patterns []Pattern) error {
	if _, err := os.Stat(path); err == nil {
		backup := strings.TrimSuffix(path, filepath.Ext(path)) + ".csv_bak"
		if data, err := os.ReadFile(path); err == nil {
			_ = os.WriteFile(backup, data, 0644)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create patterns directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create patterns file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write patterns header: %w", err)
	}
	for _, p := range patterns {
		row := []string{p.ID, p.OS, string(p.Kind), p.Expression, p.Description, formatEnabled(p.Enabled)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write pattern %s: %w", p.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush patterns file: %w", err)
	}
	return nil
}

// EnsureExists materializes the built-in pattern set at path if no pattern
// file is present yet, so first runs have something to match against.
func EnsureExists(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return Save(path, Defaults())
}

func parseEnabled(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true
	}
	return false
}

func formatEnabled(enabled bool) string {
	if enabled {
		return "Yes"
	}
	return "No"
}
