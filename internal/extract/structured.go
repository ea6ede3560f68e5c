package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// extractCSV renders each data row as "col: val | col: val" using the
// header row for column names.
func extractCSV(_ context.Context, data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\uFEFF"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("csv header: %w", err)
	}

	var b strings.Builder
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("csv row %d: %w", line, err)
		}
		parts := make([]string, 0, len(header))
		for i, col := range header {
			val := ""
			if i < len(rec) {
				val = rec[i]
			}
			parts = append(parts, strings.TrimSpace(col)+": "+val)
		}
		b.WriteString(strings.Join(parts, " | "))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// extractJSON flattens a JSON document into "key: value" lines, keeping
// object key order.
func extractJSON(_ context.Context, data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	text, err := jsonToText(dec)
	if err != nil {
		return "", fmt.Errorf("json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("json: unexpected data after top-level value")
	}
	return text, nil
}

// extractJSONL flattens each non-empty line as a JSON document, separated by
// blank lines.
func extractJSONL(ctx context.Context, data []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var parts []string
	for line := 1; sc.Scan(); line++ {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		text, err := extractJSON(ctx, raw)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", line, err)
		}
		parts = append(parts, text)
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("jsonl: %w", err)
	}
	return strings.Join(parts, "\n\n"), nil
}

// jsonToText consumes one value from dec. Objects render as "key: value"
// lines, arrays as one line per element, scalars as their literal text.
func jsonToText(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			var lines []string
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return "", err
				}
				key, _ := keyTok.(string)
				val, err := jsonToText(dec)
				if err != nil {
					return "", err
				}
				lines = append(lines, key+": "+val)
			}
			if _, err := dec.Token(); err != nil {
				return "", err
			}
			return strings.Join(lines, "\n"), nil
		case '[':
			var lines []string
			for dec.More() {
				val, err := jsonToText(dec)
				if err != nil {
					return "", err
				}
				lines = append(lines, val)
			}
			if _, err := dec.Token(); err != nil {
				return "", err
			}
			return strings.Join(lines, "\n"), nil
		}
		return "", fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "null", nil
	}
	return fmt.Sprint(tok), nil
}
