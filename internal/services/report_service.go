package services

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/logger"
	"github.com/labscribe/labscribe/backend/internal/models"
)

var ErrGeneratorUnavailable = errors.New("report generator is not configured")

// Generator is the opaque report-generation service. It streams text chunks
// into the returned channel and closes it when generation finishes or the
// context is cancelled. The security pipeline never interprets the payload.
type Generator interface {
	Generate(ctx context.Context, prompt string) (<-chan string, error)
}

// chunkBuffer bounds the stream so a slow client applies backpressure to the
// producer instead of buffering the whole report in memory.
const chunkBuffer = 16

// HTTPGenerator proxies to an upstream generation endpoint and forwards the
// response body line by line.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPGenerator creates a generator against the given upstream URL.
func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{url: url, client: &http.Client{}}
}

// Generate posts the prompt upstream and streams the body. Cancelling ctx
// aborts the upstream request via the request context.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt string) (<-chan string, error) {
	if g.url == "" {
		return nil, ErrGeneratorUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, strings.NewReader(prompt))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.New("report generator returned " + resp.Status)
	}

	out := make(chan string, chunkBuffer)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ReportService creates report records and streams generated content while
// persisting the accumulated result when the stream completes.
type ReportService struct {
	db  *gorm.DB
	gen Generator
	now func() time.Time
}

// NewReportService returns a ReportService over the given generator.
func NewReportService(db *gorm.DB, gen Generator) *ReportService {
	return &ReportService{db: db, gen: gen, now: time.Now}
}

// Generate opens a pending report row and returns a stream of chunks. The
// service tees the stream: chunks go to the caller for live delivery and are
// accumulated into the report row, which is finalized when the producer
// closes the channel or ctx is cancelled.
func (s *ReportService) Generate(ctx context.Context, userID uint, title, prompt string, documentID *uint) (*models.Report, <-chan string, error) {
	if s.gen == nil {
		return nil, nil, ErrGeneratorUnavailable
	}

	report := &models.Report{
		UUID:       uuid.NewString(),
		UserID:     userID,
		DocumentID: documentID,
		Title:      title,
		Prompt:     prompt,
		Status:     "pending",
	}
	if err := s.db.Create(report).Error; err != nil {
		return nil, nil, err
	}

	upstream, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.finish(report, "", "failed")
		return nil, nil, err
	}

	out := make(chan string, chunkBuffer)
	go func() {
		defer close(out)
		var content strings.Builder
		status := "complete"
		for chunk := range upstream {
			content.WriteString(chunk)
			content.WriteByte('\n')
			select {
			case out <- chunk:
			case <-ctx.Done():
				status = "failed"
				// Drain upstream so the producer can observe cancellation.
				for range upstream {
				}
				s.finish(report, content.String(), status)
				return
			}
		}
		if ctx.Err() != nil {
			status = "failed"
		}
		s.finish(report, content.String(), status)
	}()

	return report, out, nil
}

// ListForUser returns the user's reports, newest first.
func (s *ReportService) ListForUser(userID uint, limit int) ([]models.Report, error) {
	var reports []models.Report
	q := s.db.Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *ReportService) finish(report *models.Report, content, status string) {
	now := s.now()
	err := s.db.Model(report).Updates(map[string]interface{}{
		"content":     content,
		"status":      status,
		"finished_at": now,
	}).Error
	if err != nil {
		logger.WithComponent("reports").WithError(err).Warn("failed to finalize report")
	}
}
