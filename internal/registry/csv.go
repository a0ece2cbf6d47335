package registry

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/hashicorp/go-set/v2"

	"github.com/arnavbhatt/rollcall/internal/models"
)

// RawUserRow is one parsed roster line, not yet admitted to the registry.
type RawUserRow struct {
	Line    int    `json:"line"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	College string `json:"college"`
	Branch  string `json:"branch"`
	Year    int    `json:"year"`
}

// RowError reports a single rejected roster line. Row errors never
// abort the batch.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Reason)
}

var requiredColumns = []string{"email", "name", "college", "branch", "year"}

// ParseRoster reads a CSV roster. The header row must contain every
// required column (any order, extra columns ignored). Malformed rows
// are collected as RowErrors alongside the rows that parsed.
func ParseRoster(r io.Reader) ([]RawUserRow, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Rows with stray columns are diagnosed per row, not fatally.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading roster header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	seen := set.New[string](len(header))
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		if !seen.Contains(name) {
			seen.Insert(name)
			colIndex[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if !seen.Contains(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("roster header missing columns: %s",
			strings.Join(missing, ", "))
	}

	var (
		rows    []RawUserRow
		rowErrs []RowError
	)

	line := 1 // header was line 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: err.Error()})
			continue
		}

		row, rerr := parseRow(line, record, colIndex)
		if rerr != nil {
			rowErrs = append(rowErrs, *rerr)
			continue
		}
		rows = append(rows, row)
	}

	return rows, rowErrs, nil
}

func parseRow(line int, record []string, colIndex map[string]int) (RawUserRow, *RowError) {
	field := func(name string) (string, bool) {
		i := colIndex[name]
		if i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	for _, name := range requiredColumns {
		v, ok := field(name)
		if !ok || v == "" {
			return RawUserRow{}, &RowError{Line: line, Reason: "missing " + name}
		}
	}

	email, _ := field("email")
	email = models.NormalizeEmail(email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return RawUserRow{}, &RowError{Line: line, Reason: "invalid email format"}
	}

	yearText, _ := field("year")
	year, err := strconv.Atoi(yearText)
	if err != nil || year <= 0 {
		return RawUserRow{}, &RowError{Line: line, Reason: "year must be a positive integer"}
	}

	name, _ := field("name")
	college, _ := field("college")
	branch, _ := field("branch")

	return RawUserRow{
		Line:    line,
		Email:   email,
		Name:    name,
		College: college,
		Branch:  branch,
		Year:    year,
	}, nil
}
