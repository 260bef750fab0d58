package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 20 * time.Second

// Client talks to the remote tabular store's values API. All requests carry
// the fixed service credential as a bearer token.
type Client struct {
	// BaseURL is the API root, e.g. https://sheets.googleapis.com.
	BaseURL string

	// SpreadsheetID is the default remote store used when a command carries
	// no override.
	SpreadsheetID string

	// Token is the service credential.
	Token string

	// HTTPClient defaults to a client with a 20s timeout.
	HTTPClient *http.Client

	// UserEntered controls the value input option on writes. When true,
	// values are parsed by the remote store as if typed by a user.
	UserEntered bool
}

func (c *Client) httpClient() *http.Client {
	if c != nil && c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) storeID(override string) string {
	if id := strings.TrimSpace(override); id != "" {
		return id
	}
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.SpreadsheetID)
}

func (c *Client) valueInputOption() string {
	if c != nil && c.UserEntered {
		return "USER_ENTERED"
	}
	return "RAW"
}

// doJSON issues one request and decodes the JSON response into out (when out
// is non-nil). Transport failures and 5xx/429 responses come back as
// TransientError, 404 as NotFoundError, and other 4xx as RemoteError.
func (c *Client) doJSON(ctx context.Context, method, requestURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c != nil && strings.TrimSpace(c.Token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.Token))
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &TransientError{Cause: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &TransientError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Detail: remoteMessage(raw, resp.StatusCode)}
	case resp.StatusCode >= 400:
		return &RemoteError{Status: resp.StatusCode, Message: remoteMessage(raw, resp.StatusCode)}
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// remoteMessage pulls the error message out of a remote error body, falling
// back to the raw body or status code.
func remoteMessage(raw []byte, status int) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed != "" {
		if len(trimmed) > 200 {
			trimmed = trimmed[:200]
		}
		return trimmed
	}
	return "status " + strconv.Itoa(status)
}

func (c *Client) valuesURL(store, rng, suffix string, query url.Values) string {
	base := strings.TrimRight(c.BaseURL, "/")
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s%s",
		base, url.PathEscape(store), url.PathEscape(rng), suffix)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

type valueRange struct {
	Range  string  `json:"range,omitempty"`
	Values [][]any `json:"values,omitempty"`
}

// getValues reads a range from the remote store.
func (c *Client) getValues(ctx context.Context, store, rng string) ([][]any, error) {
	var out valueRange
	if err := c.doJSON(ctx, http.MethodGet, c.valuesURL(store, rng, "", nil), nil, &out); err != nil {
		return nil, err
	}
	return out.Values, nil
}

// appendValues appends rows after the last data row of a target and returns
// the first assigned sheet row number (1-based).
func (c *Client) appendValues(ctx context.Context, store, target string, rows [][]any) (int, error) {
	query := url.Values{"valueInputOption": {c.valueInputOption()}}
	var out struct {
		Updates struct {
			UpdatedRange string `json:"updatedRange"`
		} `json:"updates"`
	}
	body := valueRange{Values: rows}
	if err := c.doJSON(ctx, http.MethodPost, c.valuesURL(store, target, ":append", query), body, &out); err != nil {
		return 0, err
	}
	return firstRowOfRange(out.Updates.UpdatedRange), nil
}

// updateValues overwrites a range.
func (c *Client) updateValues(ctx context.Context, store, rng string, rows [][]any) error {
	query := url.Values{"valueInputOption": {c.valueInputOption()}}
	return c.doJSON(ctx, http.MethodPut, c.valuesURL(store, rng, "", query), valueRange{Range: rng, Values: rows}, nil)
}

// clearValues clears a range.
func (c *Client) clearValues(ctx context.Context, store, rng string) error {
	return c.doJSON(ctx, http.MethodPost, c.valuesURL(store, rng, ":clear", nil), struct{}{}, nil)
}

type sheetProperties struct {
	SheetID int    `json:"sheetId"`
	Title   string `json:"title"`
}

// listSheetProperties fetches tab metadata for a remote store.
func (c *Client) listSheetProperties(ctx context.Context, store string) ([]sheetProperties, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	requestURL := fmt.Sprintf("%s/v4/spreadsheets/%s?fields=sheets.properties", base, url.PathEscape(store))
	var out struct {
		Sheets []struct {
			Properties sheetProperties `json:"properties"`
		} `json:"sheets"`
	}
	if err := c.doJSON(ctx, http.MethodGet, requestURL, nil, &out); err != nil {
		return nil, err
	}
	props := make([]sheetProperties, 0, len(out.Sheets))
	for _, s := range out.Sheets {
		props = append(props, s.Properties)
	}
	return props, nil
}

// deleteRow removes one sheet row (0-based, header included) from a tab.
func (c *Client) deleteRow(ctx context.Context, store string, sheetID, sheetRow int) error {
	base := strings.TrimRight(c.BaseURL, "/")
	requestURL := fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", base, url.PathEscape(store))
	body := map[string]any{
		"requests": []map[string]any{{
			"deleteDimension": map[string]any{
				"range": map[string]any{
					"sheetId":    sheetID,
					"dimension":  "ROWS",
					"startIndex": sheetRow,
					"endIndex":   sheetRow + 1,
				},
			},
		}},
	}
	return c.doJSON(ctx, http.MethodPost, requestURL, body, nil)
}

// firstRowOfRange parses the leading row number out of an A1 range like
// "Roster!A7:C7". Returns 0 when the range cannot be parsed.
func firstRowOfRange(rng string) int {
	if i := strings.IndexByte(rng, '!'); i >= 0 {
		rng = rng[i+1:]
	}
	if i := strings.IndexByte(rng, ':'); i >= 0 {
		rng = rng[:i]
	}
	digits := strings.TrimLeft(rng, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return row
}

// columnName converts a 0-based column index to its A1 letter form.
func columnName(index int) string {
	name := ""
	for index >= 0 {
		name = string(rune('A'+index%26)) + name
		index = index/26 - 1
	}
	return name
}

// rowRange builds an A1 range covering width columns of one sheet row.
func rowRange(target string, sheetRow, width int) string {
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%s!A%d:%s%d", target, sheetRow, columnName(width-1), sheetRow)
}
