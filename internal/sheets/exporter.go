package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// Exporter writes saved expenses into a Google Sheets spreadsheet. Each
// month gets its own tab named YYYY-MM; exporting a month again replaces
// that tab's contents.
type Exporter struct {
	service *sheetsapi.Service
	logger  *slog.Logger
	config  Config
}

// NewExporter creates an exporter and authenticates against the Sheets API.
func NewExporter(ctx context.Context, config Config, logger *slog.Logger) (*Exporter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("could not create sheets service: %w", err)
	}

	return &Exporter{
		config:  config,
		service: service,
		logger:  logger,
	}, nil
}

// Export writes the expenses into the month's tab.
func (e *Exporter) Export(ctx context.Context, expenses []model.Expense, month time.Time) error {
	title := MonthTab(month)
	e.logger.Info("starting expense export", "month", title, "expenses", len(expenses))

	spreadsheetID, err := e.getOrCreateSpreadsheet(ctx, title)
	if err != nil {
		return fmt.Errorf("could not open spreadsheet: %w", err)
	}

	sheetID, err := e.ensureTab(ctx, spreadsheetID, title)
	if err != nil {
		return fmt.Errorf("could not prepare tab %s: %w", title, err)
	}

	if err := e.clearTab(ctx, spreadsheetID, title); err != nil {
		return fmt.Errorf("could not clear tab %s: %w", title, err)
	}

	values := buildRows(expenses)

	retryOpts := common.RetryOptions{
		MaxAttempts:  e.config.RetryAttempts,
		InitialDelay: e.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	err = common.WithRetry(ctx, func() error {
		return e.writeRows(ctx, spreadsheetID, title, values)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("could not write expenses: %w", err)
	}

	if e.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return e.applyFormatting(ctx, spreadsheetID, sheetID, len(values))
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already in place.
			e.logger.Warn("could not apply formatting", "error", err)
		}
	}

	e.logger.Info("expense export completed",
		"spreadsheet_id", spreadsheetID,
		"tab", title,
		"rows_written", len(values))
	return nil
}

// MonthTab returns the tab title for a month.
func MonthTab(month time.Time) string {
	return month.Format("2006-01")
}

func createSheetsService(ctx context.Context, config Config) (*sheetsapi.Service, error) {
	var tokenSource oauth2.TokenSource

	switch {
	case config.ServiceAccountPath != "":
		jsonKey, err := os.ReadFile(config.ServiceAccountPath) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}
		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheetsapi.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)

	case config.RefreshToken != "":
		oc := oauthClient(OAuthConfig{ClientID: config.ClientID, ClientSecret: config.ClientSecret})
		tokenSource = oc.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})

	default:
		token, err := GetOrCreateToken(ctx, OAuthConfig{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenFile:    config.TokenFile,
		})
		if err != nil {
			return nil, err
		}
		oc := oauthClient(OAuthConfig{ClientID: config.ClientID, ClientSecret: config.ClientSecret})
		tokenSource = oc.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheetsapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

func (e *Exporter) getOrCreateSpreadsheet(ctx context.Context, firstTab string) (string, error) {
	if e.config.SpreadsheetID != "" {
		_, err := e.service.Spreadsheets.Get(e.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", e.config.SpreadsheetID, err)
		}
		return e.config.SpreadsheetID, nil
	}

	spreadsheet := &sheetsapi.Spreadsheet{
		Properties: &sheetsapi.SpreadsheetProperties{
			Title:    e.config.SpreadsheetName,
			TimeZone: e.config.TimeZone,
		},
		Sheets: []*sheetsapi.Sheet{
			{Properties: &sheetsapi.SheetProperties{Title: firstTab}},
		},
	}

	created, err := e.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	e.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)
	e.config.SpreadsheetID = created.SpreadsheetId
	return created.SpreadsheetId, nil
}

// ensureTab finds the month's tab, adding it if missing, and returns its
// sheet ID for formatting requests.
func (e *Exporter) ensureTab(ctx context.Context, spreadsheetID, title string) (int64, error) {
	ss, err := e.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for _, sheet := range ss.Sheets {
		if sheet.Properties.Title == title {
			return sheet.Properties.SheetId, nil
		}
	}

	resp, err := e.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{
			{AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{Title: title},
			}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	e.logger.Debug("added month tab", "tab", title)
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (e *Exporter) clearTab(ctx context.Context, spreadsheetID, title string) error {
	rangeStr := fmt.Sprintf("'%s'!A:Z", title)
	_, err := e.service.Spreadsheets.Values.Clear(spreadsheetID, rangeStr, &sheetsapi.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// buildRows lays out the tab: a header, one row per expense ordered by date,
// and a final total row whose amount is a SUM formula over the data rows.
func buildRows(expenses []model.Expense) [][]any {
	sorted := make([]model.Expense, len(expenses))
	copy(sorted, expenses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Draft.Date.Before(sorted[j].Draft.Date)
	})

	values := make([][]any, 0, len(sorted)+2)
	values = append(values, []any{"Fecha", "Comercio", "Categoría", "Monto", "Moneda", "Origen", "Notas"})

	for _, expense := range sorted {
		d := expense.Draft
		values = append(values, []any{
			d.Date.Format("02/01/2006"),
			d.Merchant,
			d.Category,
			d.Total,
			d.Currency,
			sourceLabel(expense.Status),
			d.Notes,
		})
	}

	var total any = 0
	if len(sorted) > 0 {
		total = fmt.Sprintf("=SUM(D2:D%d)", len(sorted)+1)
	}
	values = append(values, []any{"Total", "", "", total})

	return values
}

func sourceLabel(status model.SaveStatus) string {
	switch status {
	case model.StatusSavedFromStatement:
		return "cartola"
	case model.StatusUserEdited:
		return "editado"
	default:
		return "escaneo"
	}
}

func (e *Exporter) writeRows(ctx context.Context, spreadsheetID, title string, values [][]any) error {
	for i := 0; i < len(values); i += e.config.BatchSize {
		end := i + e.config.BatchSize
		if end > len(values) {
			end = len(values)
		}

		valueRange := &sheetsapi.ValueRange{Values: values[i:end]}
		rangeStr := fmt.Sprintf("'%s'!A%d", title, i+1)
		_, err := e.service.Spreadsheets.Values.Update(spreadsheetID, rangeStr, valueRange).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		e.logger.Debug("wrote batch", "start_row", i+1, "rows", end-i)
	}
	return nil
}

func (e *Exporter) applyFormatting(ctx context.Context, spreadsheetID string, sheetID int64, totalRows int) error {
	requests := []*sheetsapi.Request{
		// Bold header row
		{
			RepeatCell: &sheetsapi.RepeatCellRequest{
				Range: &sheetsapi.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   7,
				},
				Cell: &sheetsapi.CellData{
					UserEnteredFormat: &sheetsapi.CellFormat{
						TextFormat: &sheetsapi.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		// Bold total row
		{
			RepeatCell: &sheetsapi.RepeatCellRequest{
				Range: &sheetsapi.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    int64(totalRows - 1),
					EndRowIndex:      int64(totalRows),
					StartColumnIndex: 0,
					EndColumnIndex:   7,
				},
				Cell: &sheetsapi.CellData{
					UserEnteredFormat: &sheetsapi.CellFormat{
						TextFormat: &sheetsapi.TextFormat{Bold: true},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		},
		// Peso format for the amount column
		{
			RepeatCell: &sheetsapi.RepeatCellRequest{
				Range: &sheetsapi.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    1,
					EndRowIndex:      int64(totalRows),
					StartColumnIndex: 3,
					EndColumnIndex:   4,
				},
				Cell: &sheetsapi.CellData{
					UserEnteredFormat: &sheetsapi.CellFormat{
						NumberFormat: &sheetsapi.NumberFormat{
							Type:    "CURRENCY",
							Pattern: "$#,##0",
						},
					},
				},
				Fields: "userEnteredFormat.numberFormat",
			},
		},
		// Auto-resize columns
		{
			AutoResizeDimensions: &sheetsapi.AutoResizeDimensionsRequest{
				Dimensions: &sheetsapi.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   7,
				},
			},
		},
		// Freeze the header
		{
			UpdateSheetProperties: &sheetsapi.UpdateSheetPropertiesRequest{
				Properties: &sheetsapi.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheetsapi.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	_, err := e.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return err
}
