package subscriber

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ImportRow is one parsed line of an import file.
type ImportRow struct {
	Name  string
	Email string
	Tier  string
}

// ParseCSV reads a name,email,tier file. Header names are matched
// case-insensitively and may appear in any order; only email is required.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrInvalidCSV
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	cols := map[string]int{"name": -1, "email": -1, "tier": -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := cols[key]; ok && cols[key] == -1 {
			cols[key] = i
		}
	}
	if cols["email"] == -1 {
		return nil, ErrInvalidCSV
	}

	field := func(rec []string, key string) string {
		i := cols[key]
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []ImportRow
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
		}
		rows = append(rows, ImportRow{
			Name:  field(rec, "name"),
			Email: field(rec, "email"),
			Tier:  field(rec, "tier"),
		})
	}
	return rows, nil
}
