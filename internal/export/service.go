package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/repository"
)

// Source is the read side of the repository the exports need.
type Source interface {
	GetStatement(ctx context.Context, id int64) (repository.Statement, error)
	Transactions(ctx context.Context, statementID int64) ([]entity.Transaction, error)
}

// Service produces XLSX and CSV bytes for a parsed statement.
type Service struct {
	source Source
	logger *slog.Logger
}

func NewService(source Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// Row is one exported transaction. The csv tags are the CSV header.
type Row struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Direction   string `csv:"direction"`
	Balance     string `csv:"balance"`
	Confidence  string `csv:"confidence"`
	NeedsReview bool   `csv:"needs_review"`
	Flags       string `csv:"flags"`
	RawDate     string `csv:"raw_date"`
}

func toRow(t entity.Transaction) Row {
	r := Row{
		Date:        t.ISODate(),
		Description: t.Description,
		Amount:      t.Amount.StringFixed(2),
		Direction:   string(t.Direction),
		Confidence:  fmt.Sprintf("%.2f", t.Confidence),
		NeedsReview: t.NeedsReview,
		Flags:       strings.Join(t.Flags, ";"),
		RawDate:     t.RawDate,
	}
	if t.Balance.Valid {
		r.Balance = t.Balance.Decimal.StringFixed(2)
	}
	return r
}

func (s *Service) rows(ctx context.Context, statementID int64) (repository.Statement, []Row, error) {
	st, err := s.source.GetStatement(ctx, statementID)
	if err != nil {
		return repository.Statement{}, nil, fmt.Errorf("load statement %d: %w", statementID, err)
	}
	txns, err := s.source.Transactions(ctx, statementID)
	if err != nil {
		return repository.Statement{}, nil, fmt.Errorf("load transactions: %w", err)
	}
	rows := make([]Row, len(txns))
	for i, t := range txns {
		rows[i] = toRow(t)
	}
	return st, rows, nil
}

// ExportCSV returns the transactions of a statement as CSV with a header line.
func (s *Service) ExportCSV(ctx context.Context, statementID int64) ([]byte, error) {
	start := time.Now()
	_, rows, err := s.rows(ctx, statementID)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gocsv.Marshal(&rows, &buf); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	s.logger.Info("export.csv.ok",
		"statement_id", statementID,
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// ExportXLSX returns a workbook with a Transactions sheet and a Summary sheet.
func (s *Service) ExportXLSX(ctx context.Context, statementID int64) ([]byte, error) {
	start := time.Now()
	st, rows, err := s.rows(ctx, statementID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Transactions"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{"Date", "Description", "Amount", "Direction", "Balance", "Confidence", "Needs Review", "Flags", "Raw Date"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.Date)
		write(2, truncate(r.Description, 140))
		write(3, r.Amount)
		write(4, r.Direction)
		write(5, r.Balance)
		write(6, r.Confidence)
		if r.NeedsReview {
			write(7, "yes")
		} else {
			write(7, "")
		}
		write(8, r.Flags)
		write(9, r.RawDate)
	}

	_ = f.SetColWidth(sheet, "A", "A", 12) // date
	_ = f.SetColWidth(sheet, "B", "B", 48) // description
	_ = f.SetColWidth(sheet, "C", "F", 14)
	_ = f.SetColWidth(sheet, "H", "H", 36) // flags

	if err := writeSummary(f, st, len(rows)); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"statement_id", statementID,
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, st repository.Statement, n int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	pairs := [][2]any{
		{"Statement", st.ID},
		{"File", st.OriginalFilename},
		{"Status", st.Status},
		{"Variant", st.SchemaVariant},
		{"Confidence", st.SchemaConfidence},
		{"Transactions", n},
	}
	for i, p := range pairs {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", i+1), p[0])
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", i+1), p[1])
	}
	_ = f.SetColWidth(sheet, "A", "A", 14)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
