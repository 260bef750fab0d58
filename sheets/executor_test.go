package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/dealerops/sheetbridge/command"
)

// fakeStore is an in-memory stand-in for the remote tabular store, serving
// just enough of the values API for the client.
type fakeStore struct {
	t      *testing.T
	id     string
	sheets map[string]*fakeSheet

	// forceStatus short-circuits every request with the given status.
	forceStatus int
}

type fakeSheet struct {
	sheetID int
	grid    [][]any
}

func newFakeStore(t *testing.T) *fakeStore {
	return &fakeStore{
		t:  t,
		id: "sheet-1",
		sheets: map[string]*fakeSheet{
			"Roster": {
				sheetID: 11,
				grid: [][]any{
					{"Name", "Phone", "Role"},
					{"B. Rogers", "555-0100", "team_leader"},
					{"A. Jones", "555-0101", "sales"},
				},
			},
			"INVENTORY": {
				sheetID: 22,
				grid: [][]any{
					{"Hat #", "Stock #", "Model"},
					{float64(1), "A100", "Wrangler"},
					{float64(2), "A200", "Gladiator"},
				},
			},
		},
	}
}

func (f *fakeStore) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.forceStatus != 0 {
			w.WriteHeader(f.forceStatus)
			fmt.Fprintf(w, `{"error":{"message":"forced %d"}}`, f.forceStatus)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		prefix := "/v4/spreadsheets/" + f.id
		if !strings.HasPrefix(r.URL.Path, prefix) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, prefix)
		switch {
		case rest == "" || rest == "/":
			f.serveMetadata(w)
		case rest == ":batchUpdate":
			f.serveBatchUpdate(w, r)
		case strings.HasPrefix(rest, "/values/"):
			f.serveValues(w, r, strings.TrimPrefix(rest, "/values/"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeStore) serveMetadata(w http.ResponseWriter) {
	type props struct {
		SheetID int    `json:"sheetId"`
		Title   string `json:"title"`
	}
	var sheets []map[string]props
	for title, sheet := range f.sheets {
		sheets = append(sheets, map[string]props{"properties": {SheetID: sheet.sheetID, Title: title}})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
}

func (f *fakeStore) serveBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []struct {
			DeleteDimension struct {
				Range struct {
					SheetID    int    `json:"sheetId"`
					Dimension  string `json:"dimension"`
					StartIndex int    `json:"startIndex"`
					EndIndex   int    `json:"endIndex"`
				} `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Requests) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rng := body.Requests[0].DeleteDimension.Range
	for _, sheet := range f.sheets {
		if sheet.sheetID == rng.SheetID {
			if rng.StartIndex < 0 || rng.StartIndex >= len(sheet.grid) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			sheet.grid = append(sheet.grid[:rng.StartIndex], sheet.grid[rng.EndIndex:]...)
			fmt.Fprint(w, "{}")
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

// parseRange splits "Target", "Target!1:1", or "Target!A3:C3" into the sheet
// and an optional single row number (0 when the whole grid is addressed).
func parseFakeRange(rng string) (target string, row int, header bool) {
	target = rng
	if i := strings.IndexByte(rng, '!'); i >= 0 {
		target = rng[:i]
		a1 := rng[i+1:]
		if a1 == "1:1" {
			return target, 0, true
		}
		start := a1
		if j := strings.IndexByte(a1, ':'); j >= 0 {
			start = a1[:j]
		}
		digits := strings.TrimLeft(start, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
		row, _ = strconv.Atoi(digits)
	}
	return target, row, false
}

func (f *fakeStore) serveValues(w http.ResponseWriter, r *http.Request, rest string) {
	action := ""
	if i := strings.LastIndexByte(rest, ':'); i >= 0 && (rest[i+1:] == "append" || rest[i+1:] == "clear") {
		action = rest[i+1:]
		rest = rest[:i]
	}
	target, row, headerOnly := parseFakeRange(rest)
	sheet, ok := f.sheets[target]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"Unable to parse range: `+target+`"}}`)
		return
	}

	switch {
	case action == "append" && r.Method == http.MethodPost:
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		first := len(sheet.grid) + 1
		sheet.grid = append(sheet.grid, body.Values...)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{
				"updatedRange": fmt.Sprintf("%s!A%d:C%d", target, first, len(sheet.grid)),
			},
		})
	case action == "clear" && r.Method == http.MethodPost:
		sheet.grid = nil
		fmt.Fprint(w, "{}")
	case r.Method == http.MethodGet:
		values := sheet.grid
		if headerOnly {
			if len(sheet.grid) > 0 {
				values = sheet.grid[:1]
			} else {
				values = nil
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	case r.Method == http.MethodPut:
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Values) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if row == 0 || row == 1 && len(body.Values) > 1 {
			// write_raw path: full grid starting at A1
			sheet.grid = body.Values
			fmt.Fprint(w, "{}")
			return
		}
		for sheetRow := row; sheetRow-row < len(body.Values); sheetRow++ {
			for len(sheet.grid) < sheetRow {
				sheet.grid = append(sheet.grid, nil)
			}
			sheet.grid[sheetRow-1] = body.Values[sheetRow-row]
		}
		fmt.Fprint(w, "{}")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testClient(t *testing.T, store *fakeStore) (*Client, *httptest.Server) {
	server := httptest.NewServer(store.handler())
	t.Cleanup(server.Close)
	return &Client{
		BaseURL:       server.URL,
		SpreadsheetID: store.id,
		Token:         "svc-token",
	}, server
}

func TestClientRead(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	rows, err := client.Read(context.Background(), "", "Roster")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["Name"] != "B. Rogers" || rows[1]["Role"] != "sales" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestClientReadRaw(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	grid, err := client.ReadRaw(context.Background(), "", "INVENTORY")
	if err != nil {
		t.Fatalf("read_raw: %v", err)
	}
	if len(grid) != 3 {
		t.Fatalf("got %d grid rows, want 3", len(grid))
	}
	if grid[0][0] != "Hat #" {
		t.Errorf("header = %v", grid[0])
	}
}

func TestClientAppend(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	row, err := client.Append(context.Background(), "", "Roster", map[string]any{
		"Name":     "J. Smith",
		"Phone":    "555-0102",
		"badfield": "dropped",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if row != 4 {
		t.Errorf("assigned row = %d, want 4", row)
	}
	appended := store.sheets["Roster"].grid[3]
	if appended[0] != "J. Smith" || appended[1] != "555-0102" {
		t.Errorf("appended row = %v", appended)
	}
	// Header field absent from the record is left blank.
	if appended[2] != "" {
		t.Errorf("Role cell = %v, want blank", appended[2])
	}
}

func TestClientAppendBatch(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	first, err := client.AppendBatch(context.Background(), "", "Roster", []map[string]any{
		{"Name": "One"},
		{"Name": "Two"},
	})
	if err != nil {
		t.Fatalf("append_batch: %v", err)
	}
	if first != 4 {
		t.Errorf("first assigned row = %d, want 4", first)
	}
	if len(store.sheets["Roster"].grid) != 5 {
		t.Errorf("grid has %d rows, want 5", len(store.sheets["Roster"].grid))
	}
}

func TestClientUpdate(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	t.Run("merges named fields", func(t *testing.T) {
		err := client.Update(context.Background(), "", "Roster", 1, map[string]any{"Phone": "555-9999"})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		row := store.sheets["Roster"].grid[2]
		if row[1] != "555-9999" {
			t.Errorf("phone = %v, want 555-9999", row[1])
		}
		if row[0] != "A. Jones" {
			t.Errorf("untouched cell changed: %v", row[0])
		}
	})

	t.Run("out of range is NotFound", func(t *testing.T) {
		err := client.Update(context.Background(), "", "Roster", 9, map[string]any{"Phone": "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestClientUpdateByField(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	t.Run("updates first match", func(t *testing.T) {
		err := client.UpdateByField(context.Background(), "", "INVENTORY", "Stock #", "A200", map[string]any{"Model": "Gladiator Sport"})
		if err != nil {
			t.Fatalf("update_by_field: %v", err)
		}
		if store.sheets["INVENTORY"].grid[2][2] != "Gladiator Sport" {
			t.Errorf("model = %v", store.sheets["INVENTORY"].grid[2][2])
		}
	})

	t.Run("no match is NotFound", func(t *testing.T) {
		err := client.UpdateByField(context.Background(), "", "INVENTORY", "Stock #", "Z999", map[string]any{"Model": "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("missing column is NotFound", func(t *testing.T) {
		err := client.UpdateByField(context.Background(), "", "INVENTORY", "Nope", "A200", map[string]any{"Model": "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestClientUpdateRaw(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	t.Run("matches numbers positionally", func(t *testing.T) {
		err := client.UpdateRaw(context.Background(), "", "INVENTORY", 0, "2", []any{float64(2), "A200", "Gladiator Rubicon"})
		if err != nil {
			t.Fatalf("update_raw: %v", err)
		}
		if store.sheets["INVENTORY"].grid[2][2] != "Gladiator Rubicon" {
			t.Errorf("row = %v", store.sheets["INVENTORY"].grid[2])
		}
	})

	t.Run("absent match value is NotFound", func(t *testing.T) {
		err := client.UpdateRaw(context.Background(), "", "INVENTORY", 0, "404", []any{"x"})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestClientWriteRaw(t *testing.T) {
	t.Run("replaces the whole grid", func(t *testing.T) {
		store := newFakeStore(t)
		client, _ := testClient(t, store)

		grid := [][]any{
			{"Name", "Phone"},
			{"Only Row", "555-0000"},
		}
		if err := client.WriteRaw(context.Background(), "", "Roster", grid); err != nil {
			t.Fatalf("write_raw: %v", err)
		}
		if len(store.sheets["Roster"].grid) != 2 {
			t.Fatalf("grid has %d rows, want 2", len(store.sheets["Roster"].grid))
		}
		if store.sheets["Roster"].grid[1][0] != "Only Row" {
			t.Errorf("rewritten grid = %v", store.sheets["Roster"].grid)
		}
	})

	t.Run("rows with no cells still address a valid range", func(t *testing.T) {
		var putRange string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPut {
				rest := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1/values/")
				putRange, _ = url.PathUnescape(rest)
			}
			fmt.Fprint(w, "{}")
		}))
		defer server.Close()

		client := &Client{BaseURL: server.URL, SpreadsheetID: "sheet-1", Token: "svc-token"}
		if err := client.WriteRaw(context.Background(), "", "Roster", [][]any{{}, {}}); err != nil {
			t.Fatalf("write_raw: %v", err)
		}
		if putRange != "Roster!A1:A2" {
			t.Errorf("update range = %q, want Roster!A1:A2", putRange)
		}
	})
}

func TestClientDelete(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	t.Run("removes the addressed data row", func(t *testing.T) {
		if err := client.Delete(context.Background(), "", "Roster", 0); err != nil {
			t.Fatalf("delete: %v", err)
		}
		grid := store.sheets["Roster"].grid
		if len(grid) != 2 {
			t.Fatalf("grid has %d rows, want 2", len(grid))
		}
		if grid[1][0] != "A. Jones" {
			t.Errorf("remaining row = %v", grid[1])
		}
	})

	t.Run("out of range is NotFound", func(t *testing.T) {
		err := client.Delete(context.Background(), "", "Roster", 42)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestClientListSheets(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	names, err := client.ListSheets(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("got %d sheets, want 2", len(names))
	}
}

func TestClientClassification(t *testing.T) {
	t.Run("5xx is transient", func(t *testing.T) {
		store := newFakeStore(t)
		store.forceStatus = http.StatusBadGateway
		client, _ := testClient(t, store)
		_, err := client.Read(context.Background(), "", "Roster")
		if !IsTransient(err) {
			t.Fatalf("expected transient, got %v", err)
		}
	})

	t.Run("429 is transient", func(t *testing.T) {
		store := newFakeStore(t)
		store.forceStatus = http.StatusTooManyRequests
		client, _ := testClient(t, store)
		_, err := client.Read(context.Background(), "", "Roster")
		if !IsTransient(err) {
			t.Fatalf("expected transient, got %v", err)
		}
	})

	t.Run("transport failure is transient", func(t *testing.T) {
		store := newFakeStore(t)
		client, server := testClient(t, store)
		server.Close()
		_, err := client.Read(context.Background(), "", "Roster")
		if !IsTransient(err) {
			t.Fatalf("expected transient, got %v", err)
		}
	})

	t.Run("unknown target is NotFound", func(t *testing.T) {
		store := newFakeStore(t)
		client, _ := testClient(t, store)
		_, err := client.Read(context.Background(), "", "Lenders")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
		if IsTransient(err) {
			t.Error("NotFound classified transient")
		}
	})

	t.Run("4xx is a permanent remote rejection", func(t *testing.T) {
		store := newFakeStore(t)
		store.forceStatus = http.StatusBadRequest
		client, _ := testClient(t, store)
		_, err := client.Read(context.Background(), "", "Roster")
		var remote *RemoteError
		if !errors.As(err, &remote) {
			t.Fatalf("expected RemoteError, got %v", err)
		}
		if !IsPermanent(err) || IsTransient(err) {
			t.Error("RemoteError misclassified")
		}
		if !strings.Contains(remote.Message, "forced 400") {
			t.Errorf("message = %q, want remote message verbatim", remote.Message)
		}
	})
}

func TestExecuteDispatch(t *testing.T) {
	store := newFakeStore(t)
	client, _ := testClient(t, store)

	t.Run("append returns assigned row", func(t *testing.T) {
		res, err := client.Execute(context.Background(), command.Command{
			Operation: command.OpAppend,
			Target:    "Roster",
			Record:    map[string]any{"Name": "J. Smith"},
		})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if res.Row != 4 {
			t.Errorf("row = %d, want 4", res.Row)
		}
	})

	t.Run("list returns sheet names", func(t *testing.T) {
		res, err := client.Execute(context.Background(), command.Command{Operation: command.OpList})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if len(res.Sheets) != 2 {
			t.Errorf("sheets = %v", res.Sheets)
		}
	})

	t.Run("invalid command fails before I/O", func(t *testing.T) {
		_, err := client.Execute(context.Background(), command.Command{Operation: command.OpAppend, Target: "Roster"})
		if !errors.Is(err, command.ErrInvalid) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestColumnName(t *testing.T) {
	tests := []struct {
		index    int
		expected string
	}{
		{0, "A"}, {1, "B"}, {25, "Z"}, {26, "AA"}, {27, "AB"}, {51, "AZ"}, {52, "BA"}, {701, "ZZ"},
	}
	for _, tt := range tests {
		if got := columnName(tt.index); got != tt.expected {
			t.Errorf("columnName(%d) = %q, want %q", tt.index, got, tt.expected)
		}
	}
}

func TestFirstRowOfRange(t *testing.T) {
	tests := []struct {
		rng      string
		expected int
	}{
		{"Roster!A7:C7", 7},
		{"DEAL LOG!AB12:AG12", 12},
		{"A3", 3},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := firstRowOfRange(tt.rng); got != tt.expected {
			t.Errorf("firstRowOfRange(%q) = %d, want %d", tt.rng, got, tt.expected)
		}
	}
}
