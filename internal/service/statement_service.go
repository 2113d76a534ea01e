package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rewear-api/internal/models"
	appErrors "github.com/noah-isme/rewear-api/pkg/errors"
	"github.com/noah-isme/rewear-api/pkg/export"
)

type pointHistoryReader interface {
	ListPointTransactions(ctx context.Context, userID string) ([]models.PointTransaction, error)
}

type statementExporter interface {
	Render(data export.Dataset, doc export.Document) ([]byte, error)
	ContentType() string
	Extension() string
}

// StatementFile is a rendered points statement.
type StatementFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

var statementHeaders = []string{"date", "kind", "description", "amount", "balance"}

// StatementService renders a member's points history.
type StatementService struct {
	history   pointHistoryReader
	users     userReader
	exporters map[string]statementExporter
	logger    *zap.Logger
	now       func() time.Time
}

// NewStatementService builds a statement service with CSV and PDF output.
func NewStatementService(history pointHistoryReader, users userReader, logger *zap.Logger) *StatementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementService{
		history: history,
		users:   users,
		exporters: map[string]statementExporter{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Generate renders the caller's statement in format (csv or pdf).
func (s *StatementService) Generate(ctx context.Context, format string, actor *models.JWTClaims) (*StatementFile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, fieldError("format", "must be csv or pdf")
	}

	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, asAppError(err, "failed to load user")
	}
	entries, err := s.history.ListPointTransactions(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load point history")
	}

	dataset := export.Dataset{Headers: statementHeaders, Rows: make([]map[string]string, 0, len(entries))}
	balance := 0
	for _, entry := range entries {
		balance += entry.Amount
		dataset.Rows = append(dataset.Rows, map[string]string{
			"date":        entry.CreatedAt.UTC().Format("2006-01-02 15:04"),
			"kind":        string(entry.Kind),
			"description": entry.Description,
			"amount":      strconv.Itoa(entry.Amount),
			"balance":     strconv.Itoa(balance),
		})
	}
	if balance != user.Points {
		s.logger.Warn("point ledger does not match balance",
			zap.String("user_id", user.ID), zap.Int("ledger", balance), zap.Int("balance", user.Points))
	}

	generated := s.now()
	data, err := exporter.Render(dataset, export.Document{
		Title:    "ReWear points statement",
		Subtitle: fmt.Sprintf("%s <%s>", user.Name, user.Email),
		Footer:   fmt.Sprintf("Current balance: %d points. Generated %s", user.Points, generated.Format(time.RFC3339)),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render statement")
	}

	return &StatementFile{
		Filename:    fmt.Sprintf("points-statement-%s.%s", generated.Format("20060102"), exporter.Extension()),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}
