// Package render turns gateway outcomes into text for the terminal.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/wemcdonald/sqlgate/pkg/gateway"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatCSV   = "csv"
)

// Messages shown for non-row outcomes.
const (
	MsgExecuted = "Command executed successfully."
	MsgNoTables = "No tables exist."
)

// NullText is how SQL NULL is displayed in tables and CSV.
const NullText = "NULL"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Outcome writes out to w in the given format. An empty format means table.
func Outcome(w io.Writer, out *gateway.Outcome, format string) error {
	var (
		s   string
		err error
	)
	switch strings.ToLower(format) {
	case "", FormatTable:
		s = Table(out)
	case FormatJSON:
		s, err = JSON(out)
	case FormatYAML:
		s, err = YAML(out)
	case FormatCSV:
		s, err = CSV(out)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return err
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err = io.WriteString(w, s)
	return err
}

// Table renders a row set as a bordered grid; acks and failures as one line.
func Table(out *gateway.Outcome) string {
	switch out.Kind {
	case gateway.KindAck:
		if out.Affected > 0 {
			return fmt.Sprintf("%s (%d rows affected)", MsgExecuted, out.Affected)
		}
		return MsgExecuted
	case gateway.KindFailure:
		return "Error executing command: " + out.Message
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(true).
		Headers(out.Columns...).
		Rows(Strings(out)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// Strings converts every cell of a row set to display text.
func Strings(out *gateway.Outcome) [][]string {
	rows := make([][]string, len(out.Rows))
	for i, row := range out.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatValue(v)
		}
		rows[i] = cells
	}
	return rows
}

// FormatValue renders a single cell.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return NullText
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

type statusDoc struct {
	Status   string `json:"status" yaml:"status"`
	Affected int64  `json:"affected,omitempty" yaml:"affected,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func status(out *gateway.Outcome) statusDoc {
	if out.IsFailure() {
		return statusDoc{Status: "error", Error: out.Message}
	}
	return statusDoc{Status: "ok", Affected: out.Affected}
}

// JSON renders a row set as an array of objects with keys in column order.
func JSON(out *gateway.Outcome) (string, error) {
	if !out.IsRowSet() {
		b, err := json.Marshal(status(out))
		if err != nil {
			return "", fmt.Errorf("marshal status: %w", err)
		}
		return string(b), nil
	}

	var b strings.Builder
	b.WriteString("[")
	for ri, row := range out.Rows {
		if ri > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n  ")
		obj, err := rowToJSON(out.Columns, row)
		if err != nil {
			return "", err
		}
		b.WriteString(obj)
	}
	if len(out.Rows) > 0 {
		b.WriteString("\n")
	}
	b.WriteString("]")
	return b.String(), nil
}

// rowToJSON preserves column order unlike map marshaling
func rowToJSON(columns []string, row []any) (string, error) {
	var b strings.Builder
	b.WriteString("{")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		key, _ := json.Marshal(col)
		b.Write(key)
		b.WriteString(": ")
		var v any
		if i < len(row) {
			v = row[i]
		}
		val, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal column %s: %w", col, err)
		}
		b.Write(val)
	}
	b.WriteString("}")
	return b.String(), nil
}

// YAML renders a row set as a sequence of mappings in column order.
func YAML(out *gateway.Outcome) (string, error) {
	if !out.IsRowSet() {
		b, err := yaml.Marshal(status(out))
		if err != nil {
			return "", fmt.Errorf("marshal status: %w", err)
		}
		return string(b), nil
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range out.Rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for i, col := range out.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			val, err := valueNode(v)
			if err != nil {
				return "", fmt.Errorf("encode column %s: %w", col, err)
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: col}, val)
		}
		seq.Content = append(seq.Content, m)
	}

	b, err := yaml.Marshal(seq)
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	return string(b), nil
}

func valueNode(v any) (*yaml.Node, error) {
	if v == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

// CSV renders a row set with a header line. Acks and failures produce a
// single status line.
func CSV(out *gateway.Outcome) (string, error) {
	if !out.IsRowSet() {
		return Table(out), nil
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(out.Columns); err != nil {
		return "", err
	}
	for _, row := range Strings(out) {
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return b.String(), nil
}

// Tables renders the result of a table listing.
func Tables(names []string) string {
	if len(names) == 0 {
		return MsgNoTables
	}
	var b strings.Builder
	b.WriteString("Existing tables:")
	for _, n := range names {
		b.WriteString("\n- ")
		b.WriteString(n)
	}
	return b.String()
}
