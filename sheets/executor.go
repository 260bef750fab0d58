package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dealerops/sheetbridge/command"
)

var tracer = otel.Tracer("sheetbridge/sheets")

// Result is the outcome of one executed command. Only the fields relevant to
// the operation are populated.
type Result struct {
	// Rows holds field-keyed rows for read.
	Rows []map[string]any `json:"rows,omitempty"`

	// Grid holds the raw 2-D grid for read_raw.
	Grid [][]any `json:"grid,omitempty"`

	// Row is the assigned sheet row number for append and append_raw.
	Row int `json:"row,omitempty"`

	// Appended is the number of rows written by append_batch and write_raw.
	Appended int `json:"appended,omitempty"`

	// Updated reports a successful update, update_by_field, update_raw,
	// write_raw, or delete.
	Updated bool `json:"updated,omitempty"`

	// Sheets lists tab names for list.
	Sheets []string `json:"sheets,omitempty"`
}

// Execute runs one command against the remote store. The switch is the only
// place operations fan out to the protocol, so a new operation fails loudly
// here instead of silently doing nothing.
func (c *Client) Execute(ctx context.Context, cmd command.Command) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "sheets.execute")
	span.SetAttributes(
		attribute.String("command.operation", string(cmd.Operation)),
		attribute.String("command.target", cmd.Target),
	)
	defer span.End()

	store := c.storeID(cmd.SpreadsheetID)
	if store == "" {
		return nil, &command.ValidationError{Reason: "no spreadsheet id configured"}
	}

	switch cmd.Operation {
	case command.OpRead:
		rows, err := c.Read(ctx, store, cmd.Target)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows}, nil
	case command.OpReadRaw:
		grid, err := c.ReadRaw(ctx, store, cmd.Target)
		if err != nil {
			return nil, err
		}
		return &Result{Grid: grid}, nil
	case command.OpAppend:
		row, err := c.Append(ctx, store, cmd.Target, cmd.Record)
		if err != nil {
			return nil, err
		}
		return &Result{Row: row}, nil
	case command.OpAppendRaw:
		row, err := c.AppendRaw(ctx, store, cmd.Target, cmd.Values)
		if err != nil {
			return nil, err
		}
		return &Result{Row: row}, nil
	case command.OpAppendBatch:
		row, err := c.AppendBatch(ctx, store, cmd.Target, cmd.Records)
		if err != nil {
			return nil, err
		}
		return &Result{Row: row, Appended: len(cmd.Records)}, nil
	case command.OpUpdate:
		if err := c.Update(ctx, store, cmd.Target, *cmd.RowIndex, cmd.Record); err != nil {
			return nil, err
		}
		return &Result{Updated: true}, nil
	case command.OpUpdateByField:
		if err := c.UpdateByField(ctx, store, cmd.Target, cmd.MatchColumn, cmd.MatchValue, cmd.Record); err != nil {
			return nil, err
		}
		return &Result{Updated: true}, nil
	case command.OpUpdateRaw:
		if err := c.UpdateRaw(ctx, store, cmd.Target, *cmd.MatchColumnIndex, cmd.MatchValue, cmd.Values); err != nil {
			return nil, err
		}
		return &Result{Updated: true}, nil
	case command.OpWriteRaw:
		if err := c.WriteRaw(ctx, store, cmd.Target, cmd.Grid); err != nil {
			return nil, err
		}
		return &Result{Updated: true, Appended: len(cmd.Grid)}, nil
	case command.OpDelete:
		if err := c.Delete(ctx, store, cmd.Target, *cmd.RowIndex); err != nil {
			return nil, err
		}
		return &Result{Updated: true}, nil
	case command.OpList:
		sheets, err := c.ListSheets(ctx, store)
		if err != nil {
			return nil, err
		}
		return &Result{Sheets: sheets}, nil
	}
	return nil, &command.ValidationError{Reason: fmt.Sprintf("unknown operation %q", cmd.Operation)}
}

// Read returns field-keyed rows of a target, using row 1 as the header.
// Duplicate header names shadow left to right; use ReadRaw for such targets.
func (c *Client) Read(ctx context.Context, store, target string) ([]map[string]any, error) {
	grid, err := c.getValues(ctx, store, target)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return []map[string]any{}, nil
	}
	header := headerStrings(grid[0])
	rows := make([]map[string]any, 0, len(grid)-1)
	for _, raw := range grid[1:] {
		row := make(map[string]any, len(header))
		for i, name := range header {
			if name == "" {
				continue
			}
			if i < len(raw) {
				row[name] = raw[i]
			} else {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadRaw returns the raw 2-D grid of a target.
func (c *Client) ReadRaw(ctx context.Context, store, target string) ([][]any, error) {
	grid, err := c.getValues(ctx, store, target)
	if err != nil {
		return nil, err
	}
	if grid == nil {
		grid = [][]any{}
	}
	return grid, nil
}

// Append appends one field-keyed row. Record fields with no matching header
// are ignored; header fields absent from the record are left blank. Returns
// the assigned sheet row number.
func (c *Client) Append(ctx context.Context, store, target string, record map[string]any) (int, error) {
	header, err := c.headerRow(ctx, store, target)
	if err != nil {
		return 0, err
	}
	return c.appendValues(ctx, store, target, [][]any{recordToRow(header, record)})
}

// AppendRaw appends one row by strict column position, bypassing header
// validation.
func (c *Client) AppendRaw(ctx context.Context, store, target string, values []any) (int, error) {
	return c.appendValues(ctx, store, target, [][]any{values})
}

// AppendBatch appends many field-keyed rows in one round trip and returns
// the first assigned sheet row number.
func (c *Client) AppendBatch(ctx context.Context, store, target string, records []map[string]any) (int, error) {
	header, err := c.headerRow(ctx, store, target)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(records))
	for _, record := range records {
		rows = append(rows, recordToRow(header, record))
	}
	return c.appendValues(ctx, store, target, rows)
}

// Update mutates named fields of the 0-based data row rowIndex.
func (c *Client) Update(ctx context.Context, store, target string, rowIndex int, partial map[string]any) error {
	grid, err := c.getValues(ctx, store, target)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return &NotFoundError{Target: target, Detail: "target is empty"}
	}
	if rowIndex < 0 || rowIndex >= len(grid)-1 {
		return &NotFoundError{Target: target, Detail: fmt.Sprintf("row %d out of range (%d data rows)", rowIndex, len(grid)-1)}
	}
	header := headerStrings(grid[0])
	merged := mergeRow(header, grid[rowIndex+1], partial)
	sheetRow := rowIndex + 2 // 1-based, after the header row
	return c.updateValues(ctx, store, rowRange(target, sheetRow, len(merged)), [][]any{merged})
}

// UpdateByField locates the first data row where matchColumn equals
// matchValue and updates it with the partial record.
func (c *Client) UpdateByField(ctx context.Context, store, target, matchColumn, matchValue string, partial map[string]any) error {
	grid, err := c.getValues(ctx, store, target)
	if err != nil {
		return err
	}
	if len(grid) == 0 {
		return &NotFoundError{Target: target, Detail: "target is empty"}
	}
	header := headerStrings(grid[0])
	col := -1
	for i, name := range header {
		if name == matchColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return &NotFoundError{Target: target, Detail: fmt.Sprintf("no column %q", matchColumn)}
	}
	for i, raw := range grid[1:] {
		if col < len(raw) && cellString(raw[col]) == matchValue {
			merged := mergeRow(header, raw, partial)
			sheetRow := i + 2
			return c.updateValues(ctx, store, rowRange(target, sheetRow, len(merged)), [][]any{merged})
		}
	}
	return &NotFoundError{Target: target, Detail: fmt.Sprintf("no row where %s = %q", matchColumn, matchValue)}
}

// UpdateRaw re-reads the grid, finds the first row whose cell at
// matchColumnIndex equals matchValue, and overwrites its full value range.
func (c *Client) UpdateRaw(ctx context.Context, store, target string, matchColumnIndex int, matchValue string, values []any) error {
	grid, err := c.getValues(ctx, store, target)
	if err != nil {
		return err
	}
	for i, raw := range grid {
		if matchColumnIndex < len(raw) && cellString(raw[matchColumnIndex]) == matchValue {
			sheetRow := i + 1
			return c.updateValues(ctx, store, rowRange(target, sheetRow, len(values)), [][]any{values})
		}
	}
	return &NotFoundError{Target: target, Detail: fmt.Sprintf("no row with %q at column %d", matchValue, matchColumnIndex)}
}

// WriteRaw clears the entire target range and rewrites it from the grid.
// Destructive; gated as admin-class alongside delete.
func (c *Client) WriteRaw(ctx context.Context, store, target string, grid [][]any) error {
	if err := c.clearValues(ctx, store, target); err != nil {
		return err
	}
	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	if width < 1 {
		width = 1
	}
	rng := fmt.Sprintf("%s!A1:%s%d", target, columnName(width-1), len(grid))
	return c.updateValues(ctx, store, rng, grid)
}

// Delete removes the 0-based data row rowIndex from a target.
func (c *Client) Delete(ctx context.Context, store, target string, rowIndex int) error {
	grid, err := c.getValues(ctx, store, target)
	if err != nil {
		return err
	}
	if rowIndex < 0 || rowIndex >= len(grid)-1 {
		return &NotFoundError{Target: target, Detail: fmt.Sprintf("row %d out of range (%d data rows)", rowIndex, len(grid)-1)}
	}
	props, err := c.listSheetProperties(ctx, store)
	if err != nil {
		return err
	}
	for _, p := range props {
		if p.Title == target {
			return c.deleteRow(ctx, store, p.SheetID, rowIndex+1)
		}
	}
	return &NotFoundError{Target: target, Detail: "no such sheet"}
}

// ListSheets returns the tab names of a remote store.
func (c *Client) ListSheets(ctx context.Context, store string) ([]string, error) {
	props, err := c.listSheetProperties(ctx, store)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Title)
	}
	return names, nil
}

// headerRow fetches row 1 of a target.
func (c *Client) headerRow(ctx context.Context, store, target string) ([]string, error) {
	grid, err := c.getValues(ctx, store, target+"!1:1")
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, &NotFoundError{Target: target, Detail: "target has no header row"}
	}
	return headerStrings(grid[0]), nil
}

func headerStrings(raw []any) []string {
	header := make([]string, len(raw))
	for i, cell := range raw {
		header[i] = strings.TrimSpace(cellString(cell))
	}
	return header
}

// recordToRow lays a field-keyed record out positionally under the header.
// Unmatched record fields are dropped; uncovered header columns stay blank.
func recordToRow(header []string, record map[string]any) []any {
	row := make([]any, len(header))
	for i, name := range header {
		if value, ok := record[name]; ok {
			row[i] = value
		} else {
			row[i] = ""
		}
	}
	return row
}

// mergeRow overlays partial onto an existing raw row by header position.
func mergeRow(header []string, raw []any, partial map[string]any) []any {
	merged := make([]any, len(header))
	for i := range header {
		if i < len(raw) {
			merged[i] = raw[i]
		} else {
			merged[i] = ""
		}
	}
	for i, name := range header {
		if value, ok := partial[name]; ok {
			merged[i] = value
		}
	}
	return merged
}

// cellString renders a cell for comparison. Integral floats print without a
// decimal point so JSON-decoded numbers compare naturally against "42".
func cellString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}
