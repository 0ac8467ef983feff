package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/keel/pkg/core"
)

// CSVHeader is the first row of a CSV export.
const CSVHeader = "timestamp,action,sequenceId,hash"

// Export renders every parseable entry of category.
func (l *AuditLog) Export(ctx context.Context, category string, format core.ExportFormat) ([]byte, error) {
	entries, err := l.Read(ctx, category, 0)
	if err != nil {
		return nil, err
	}

	switch format {
	case core.FormatJSON:
		return exportJSON(entries)
	case core.FormatCSV:
		return exportCSV(entries), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownFormat, format)
	}
}

func exportJSON(entries []core.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("failed to encode entries: %w", err)
	}
	return buf.Bytes(), nil
}

// exportCSV quotes every string field. encoding/csv only quotes when it
// has to, which breaks consumers that expect a fixed shape.
func exportCSV(entries []core.Entry) []byte {
	var buf bytes.Buffer
	buf.WriteString(CSVHeader)
	buf.WriteByte('\n')
	for _, e := range entries {
		buf.WriteString(quoteCSV(e.Timestamp))
		buf.WriteByte(',')
		buf.WriteString(quoteCSV(e.Action))
		buf.WriteByte(',')
		buf.WriteString(strconv.FormatInt(e.SequenceID, 10))
		buf.WriteByte(',')
		buf.WriteString(quoteCSV(e.Hash))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
