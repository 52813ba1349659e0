package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cashplan/internal/core"
	"cashplan/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client pushes project summaries to a Google Sheets dashboard.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ export.SummaryWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID. Auth via GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Cashflow").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Cashflow"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteSummary replaces the dashboard sheet with the project's category
// table and the active scenario's monthly planned-vs-actual grid.
func (c *Client) WriteSummary(ctx context.Context, p core.Project) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rows := summaryRows(p)

	clearRange := fmt.Sprintf("%s!A:Z", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear dashboard range: %w", err)
	}

	vr := &gsheet.ValueRange{Values: rows}
	writeRange := fmt.Sprintf("%s!A1", c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write dashboard: %w", err)
	}

	slog.InfoContext(ctx, "Project summary exported to Google Sheets",
		"project_id", p.ID,
		"scenario_id", p.CurrentScenario,
		"rows", len(rows))
	return nil
}

// summaryRows flattens a project into spreadsheet rows: category table,
// totals, then a per-month planned/actual grid for the active scenario.
func summaryRows(p core.Project) [][]any {
	summary := core.Summarize(&p, p.CurrentScenario)
	sc := p.Scenarios[p.CurrentScenario]

	rows := [][]any{
		{"Project", p.Info.Name, "Client", p.Info.Client, "Scenario", p.CurrentScenario},
		{},
		{"Code", "Category", "Cost Type", "Budget", "Projected", "Actual"},
	}

	for i := range p.Categories {
		cat := &p.Categories[i]
		var projected, actual float64
		if sc != nil {
			for _, v := range sc.Projections[cat.ID] {
				projected += v
			}
			for _, v := range sc.Actuals[cat.ID] {
				actual += v
			}
		}
		rows = append(rows, []any{cat.Code, cat.Name, string(cat.CostType), cat.Amount, projected, actual})
	}

	rows = append(rows,
		[]any{},
		[]any{"Totals", "", "", summary.TotalBudget, summary.TotalProjected, summary.TotalActual},
		[]any{"Remaining", "", "", summary.TotalRemaining},
		[]any{},
	)

	header := make([]any, 0, core.Horizon+1)
	header = append(header, "Month")
	for m := 0; m < core.Horizon; m++ {
		header = append(header, fmt.Sprintf("M%02d", m))
	}
	rows = append(rows, header)

	planned := make([]any, 0, core.Horizon+1)
	actuals := make([]any, 0, core.Horizon+1)
	planned = append(planned, "Planned")
	actuals = append(actuals, "Actual")
	for m := 0; m < core.Horizon; m++ {
		var pSum, aSum float64
		if sc != nil {
			for _, months := range sc.Projections {
				pSum += months[m]
			}
			for _, months := range sc.Actuals {
				aSum += months[m]
			}
		}
		planned = append(planned, pSum)
		actuals = append(actuals, aSum)
	}
	rows = append(rows, planned, actuals)

	return rows
}
