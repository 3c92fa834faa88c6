// Package output renders reconciliation results for the command line
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v4"

	"github.com/akam1o/cbs-volume/pkg/reconciler"
)

// Format is an output format
type Format string

const (
	// FormatJSON prints a machine-readable document
	FormatJSON Format = "json"

	// FormatText prints a status line and an attribute table
	FormatText Format = "text"
)

// ParseFormat parses the -output flag value
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatText:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q, expected %q or %q", s, FormatJSON, FormatText)
	}
}

// Document is the JSON shape of a result
type Document struct {
	Changed bool                   `json:"changed"`
	Volume  map[string]interface{} `json:"volume"`
	Msg     string                 `json:"msg,omitempty"`
	Failed  bool                   `json:"failed,omitempty"`
}

// NewDocument converts a result to its JSON shape
func NewDocument(result *reconciler.Result) Document {
	return Document{
		Changed: result.Changed,
		Volume:  result.VolumeAttributes(),
		Msg:     result.Msg,
		Failed:  result.Failed(),
	}
}

// Printer writes results in one format
type Printer struct {
	out    io.Writer
	format Format
	colors *aurora.Aurora
}

// NewPrinter creates a printer. colors only affects the text format.
func NewPrinter(out io.Writer, format Format, colors bool) *Printer {
	return &Printer{
		out:    out,
		format: format,
		colors: aurora.New(aurora.WithColors(colors)),
	}
}

// Print writes the result
func (p *Printer) Print(result *reconciler.Result) error {
	switch p.format {
	case FormatText:
		return p.printText(result)
	default:
		return p.printJSON(result)
	}
}

func (p *Printer) printJSON(result *reconciler.Result) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(result))
}

func (p *Printer) printText(result *reconciler.Result) error {
	switch {
	case result.Failed():
		fmt.Fprintf(p.out, "%s: %s\n", p.colors.Red("FAILED"), result.Msg)
	case result.Changed:
		fmt.Fprintf(p.out, "%s\n", p.colors.Yellow("CHANGED"))
	default:
		fmt.Fprintf(p.out, "%s\n", p.colors.Green("OK"))
	}

	if result.Volume == nil {
		fmt.Fprintln(p.out, p.colors.Yellow("No volume"))
		return nil
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, p.colors.Bold("Volume:"))

	attrs := result.VolumeAttributes()
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	t := tabby.NewCustom(tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0))
	t.AddHeader("ATTRIBUTE", "VALUE")
	for _, key := range keys {
		t.AddLine(key, formatValue(attrs[key]))
	}
	t.Print()

	return nil
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case map[string]string:
		pairs := make([]string, 0, len(v))
		for key, val := range v {
			pairs = append(pairs, key+"="+val)
		}
		sort.Strings(pairs)
		return strings.Join(pairs, ",")
	default:
		return fmt.Sprint(v)
	}
}
