package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// ErrAuth is returned when the service account cannot authenticate or the
// spreadsheet cannot be opened with it.
var ErrAuth = errors.New("google sheets authentication failed")

const (
	newSheetRows    = 100
	newSheetColumns = 20
)

type Client struct {
	srv           *sheetsv4.Service
	spreadsheetID string
}

// Open authenticates with a service account key and checks that the
// spreadsheet is reachable. Both failures wrap ErrAuth.
func Open(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (*Client, error) {
	jwtConfig, err := google.JWTConfigFromJSON(credentialsJSON, sheetsv4.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse service account key: %v", ErrAuth, err)
	}

	tokenSource := jwtConfig.TokenSource(ctx)
	if _, err := tokenSource.Token(); err != nil {
		return nil, fmt.Errorf("%w: failed to obtain access token: %v", ErrAuth, err)
	}

	srv, err := sheetsv4.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	client := New(srv, spreadsheetID)
	if _, err := client.sheetProperties(ctx); err != nil {
		return nil, fmt.Errorf("%w: failed to open spreadsheet %s: %v", ErrAuth, spreadsheetID, err)
	}

	slog.Debug("Spreadsheet opened", "spreadsheet_id", spreadsheetID)
	return client, nil
}

// New wraps an already configured service.
func New(srv *sheetsv4.Service, spreadsheetID string) *Client {
	return &Client{srv: srv, spreadsheetID: spreadsheetID}
}

// ReadColumn returns column A of a sheet, one string per row. Rows without a
// value in column A come back as empty strings.
func (c *Client) ReadColumn(ctx context.Context, sheet string) ([]string, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheetRange(sheet, "A:A")).
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read column A of '%s': %w", sheet, err)
	}

	values := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			values = append(values, "")
			continue
		}
		values = append(values, fmt.Sprint(row[0]))
	}
	return values, nil
}

// Replace makes rows the entire content of a sheet: the sheet is created
// when missing, cleared otherwise, resized to the table and written from A1.
func (c *Client) Replace(ctx context.Context, sheet string, rows [][]interface{}) error {
	props, err := c.sheetProperties(ctx)
	if err != nil {
		return fmt.Errorf("failed to read spreadsheet properties: %w", err)
	}

	sheetID, exists := findSheet(props, sheet)
	if exists {
		_, err := c.srv.Spreadsheets.Values.Clear(c.spreadsheetID, quoteSheet(sheet), &sheetsv4.ClearValuesRequest{}).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to clear sheet '%s': %w", sheet, err)
		}
	} else {
		sheetID, err = c.addSheet(ctx, sheet)
		if err != nil {
			return err
		}
		slog.Info("Output sheet created", "sheet", sheet, "rows", newSheetRows, "columns", newSheetColumns)
	}

	rowCount, columnCount := gridSize(rows)
	if err := c.resize(ctx, sheetID, rowCount, columnCount); err != nil {
		return fmt.Errorf("failed to resize sheet '%s': %w", sheet, err)
	}

	_, err = c.srv.Spreadsheets.Values.Update(c.spreadsheetID, sheetRange(sheet, "A1"), &sheetsv4.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write sheet '%s': %w", sheet, err)
	}

	slog.Debug("Sheet replaced", "sheet", sheet, "rows", rowCount, "columns", columnCount)
	return nil
}

func (c *Client) sheetProperties(ctx context.Context) ([]*sheetsv4.SheetProperties, error) {
	spreadsheet, err := c.srv.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	props := make([]*sheetsv4.SheetProperties, 0, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil {
			props = append(props, s.Properties)
		}
	}
	return props, nil
}

func (c *Client) addSheet(ctx context.Context, sheet string) (int64, error) {
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			AddSheet: &sheetsv4.AddSheetRequest{
				Properties: &sheetsv4.SheetProperties{
					Title: sheet,
					GridProperties: &sheetsv4.GridProperties{
						RowCount:    newSheetRows,
						ColumnCount: newSheetColumns,
					},
				},
			},
		}},
	}

	resp, err := c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet '%s': %w", sheet, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("failed to create sheet '%s': empty reply", sheet)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (c *Client) resize(ctx context.Context, sheetID, rowCount, columnCount int64) error {
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsv4.Request{{
			UpdateSheetProperties: &sheetsv4.UpdateSheetPropertiesRequest{
				Properties: &sheetsv4.SheetProperties{
					SheetId: sheetID,
					GridProperties: &sheetsv4.GridProperties{
						RowCount:    rowCount,
						ColumnCount: columnCount,
					},
				},
				Fields: "gridProperties.rowCount,gridProperties.columnCount",
			},
		}},
	}

	_, err := c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	return err
}

func findSheet(props []*sheetsv4.SheetProperties, title string) (int64, bool) {
	for _, p := range props {
		if p.Title == title {
			return p.SheetId, true
		}
	}
	return 0, false
}

func gridSize(rows [][]interface{}) (int64, int64) {
	rowCount := int64(max(len(rows), 1))
	columnCount := int64(1)
	for _, row := range rows {
		columnCount = max(columnCount, int64(len(row)))
	}
	return rowCount, columnCount
}

// quoteSheet renders a sheet title for A1 notation.
func quoteSheet(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func sheetRange(sheet, cells string) string {
	return quoteSheet(sheet) + "!" + cells
}
