package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/nainya/pinpoint/pkg/dataset"
	"github.com/nainya/pinpoint/pkg/prompt"
	"github.com/nainya/pinpoint/pkg/wikidata"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderEntities(w io.Writer, refs []wikidata.EntityRef) {
	if len(refs) == 0 {
		_, _ = fmt.Fprintln(w, "(0 results)")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Label", "Description"})
	for _, r := range refs {
		t.AppendRow(table.Row{r.ID, r.Label, r.Description})
	}
	t.Render()
}

// renderRecords prints at most top records (all if top <= 0). A non-empty
// tmpl adds a column with each record's rendered prompt.
func renderRecords(w io.Writer, t dataset.Type, records []dataset.Record, top int, tmpl string) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "(0 records)")
		return
	}

	tw := newTable(w)
	header := table.Row{"#", "Label", "ID", "Lat", "Lng"}
	if t == dataset.Polygon {
		header = table.Row{"#", "Label", "ID", "Shape"}
	}
	if tmpl != "" {
		header = append(header, "Prompt")
	}
	tw.AppendHeader(header)

	shown := records
	if top > 0 && len(shown) > top {
		shown = shown[:top]
	}
	for i, r := range shown {
		var row table.Row
		switch {
		case r.Coordinates != nil:
			row = table.Row{i + 1, r.Label, r.ID, formatCoord(r.Lat), formatCoord(r.Lng)}
		case r.Shape != nil:
			row = table.Row{i + 1, r.Label, r.ID, r.GeoShapeURL}
		default:
			continue
		}
		if tmpl != "" {
			row = append(row, prompt.RenderRecord(tmpl, r))
		}
		tw.AppendRow(row)
	}
	tw.Render()

	if len(shown) < len(records) {
		_, _ = fmt.Fprintf(w, "(%d of %d records)\n", len(shown), len(records))
		return
	}
	_, _ = fmt.Fprintf(w, "(%d records)\n", len(records))
}

func renderEntriesTable(w io.Writer, entries []dataset.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "(0 datasets)")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Type", "Filename", "Item Type", "Constraints"})
	for _, e := range entries {
		itemType, constraints := "", ""
		if e.Config != nil {
			itemType = e.Config.ItemType
			for i, c := range e.Config.Constraints {
				if i > 0 {
					constraints += " "
				}
				constraints += c.String()
			}
		}
		t.AppendRow(table.Row{e.ID, e.Name, e.Type, e.Filename, itemType, constraints})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d datasets)\n", len(entries))
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderYAML emits v with its JSON field names by decoding the JSON form
func renderYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
