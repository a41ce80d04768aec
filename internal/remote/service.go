// Package remote wraps the endpoints of the face-recognition service in typed
// calls routed through the resilient rpc client.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc"
	"github.com/vietddude/faceguard/internal/paging"
)

// MaxScanPages bounds the degraded student lookup.
const MaxScanPages = 20

// ErrStudentNotFound is returned when a lookup finds no matching student.
var ErrStudentNotFound = errors.New("student not found")

// Options tunes a Service.
type Options struct {
	PageSize int
	// ListTTL caches listing pages briefly so back-navigation stays local.
	ListTTL time.Duration
}

// Service is the typed client of the recognition service.
type Service struct {
	client   *rpc.Client
	pageSize int
	listTTL  time.Duration
	logger   *slog.Logger
}

// NewService creates a service on top of client.
func NewService(client *rpc.Client, opts Options, logger *slog.Logger) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.ListTTL <= 0 {
		opts.ListTTL = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, pageSize: opts.PageSize, listTTL: opts.ListTTL, logger: logger}
}

type studentPage struct {
	Items      []json.RawMessage `json:"items"`
	Page       int               `json:"page"`
	TotalPages int               `json:"total_pages"`
}

// FetchPage returns one page of the students listing for filter.
func (s *Service) FetchPage(ctx context.Context, filter paging.Filter, page int) (domain.Page, error) {
	q := url.Values{}
	for k, v := range filter.Params {
		if v != "" {
			q.Set(k, v)
		}
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(s.pageSize))

	op := rpc.NewRead("students/list?"+q.Encode(), "/students?"+q.Encode())
	body, err := s.client.Read(ctx, op, s.listTTL)
	if err != nil {
		return domain.Page{}, err
	}

	var raw studentPage
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.Page{}, fmt.Errorf("decode students page: %w", err)
	}

	items := make([]domain.Item, 0, len(raw.Items))
	for _, data := range raw.Items {
		var ref struct {
			ID string `json:"student_id"`
		}
		if err := json.Unmarshal(data, &ref); err != nil {
			return domain.Page{}, fmt.Errorf("decode student: %w", err)
		}
		items = append(items, domain.Item{ID: ref.ID, Data: data})
	}

	if raw.Page == 0 {
		raw.Page = page
	}
	return domain.Page{Items: items, Page: raw.Page, TotalPages: raw.TotalPages}, nil
}

// GetStudent fetches a student by id.
func (s *Service) GetStudent(ctx context.Context, id string) (domain.Student, error) {
	op := rpc.NewRead("students/"+url.PathEscape(id), "/students/"+url.PathEscape(id))
	body, err := s.client.Read(ctx, op, 0)
	if err != nil {
		return domain.Student{}, err
	}

	var student domain.Student
	if err := json.Unmarshal(body, &student); err != nil {
		return domain.Student{}, fmt.Errorf("decode student: %w", err)
	}
	return student, nil
}

// FindStudent looks a student up by id. When the service has no direct
// lookup it falls back to scanning the listing, at most MaxScanPages pages.
func (s *Service) FindStudent(ctx context.Context, id string) (domain.Student, error) {
	student, err := s.GetStudent(ctx, id)
	if err == nil {
		return student, nil
	}

	var failure *rpc.Failure
	if !errors.As(err, &failure) || failure.Kind != domain.KindClientError ||
		(failure.Status != http.StatusNotFound && failure.Status != http.StatusMethodNotAllowed) {
		return domain.Student{}, err
	}

	s.logger.Debug("Direct student lookup unavailable, scanning listing", "student_id", id, "status", failure.Status)

	for page := 1; page <= MaxScanPages; page++ {
		p, err := s.FetchPage(ctx, paging.Filter{}, page)
		if err != nil {
			return domain.Student{}, err
		}
		for _, item := range p.Items {
			if item.ID != id {
				continue
			}
			if err := json.Unmarshal(item.Data, &student); err != nil {
				return domain.Student{}, fmt.Errorf("decode student: %w", err)
			}
			return student, nil
		}
		if page >= p.TotalPages {
			break
		}
	}
	return domain.Student{}, ErrStudentNotFound
}

// Recognize submits an image. The idempotency key lets the server drop a
// duplicate submission caused by a retry.
func (s *Service) Recognize(ctx context.Context, image []byte, idempotencyKey string) (domain.Recognition, error) {
	op, err := rpc.NewUploadWrite("recognize", "/recognize", "image", "capture.jpg", image, nil)
	if err != nil {
		return domain.Recognition{}, err
	}
	if idempotencyKey != "" {
		op.IdempotencyKey = idempotencyKey
	}

	body, err := s.client.Write(ctx, op)
	if err != nil {
		return domain.Recognition{}, err
	}

	var rec domain.Recognition
	if err := json.Unmarshal(body, &rec); err != nil {
		return domain.Recognition{}, fmt.Errorf("decode recognition: %w", err)
	}
	return rec, nil
}

// AcknowledgeAlert records the acknowledgment, queueing it when the service
// is unreachable so it is delivered once connectivity returns.
func (s *Service) AcknowledgeAlert(ctx context.Context, alert domain.Alert) error {
	id := url.PathEscape(alert.ID)
	op, err := rpc.NewJSONWrite("alerts/"+id+"/ack", "/alerts/"+id+"/ack", map[string]string{
		"level": string(alert.Level),
	})
	if err != nil {
		return err
	}

	sub, err := s.client.WriteOrQueue(ctx, op)
	if err != nil {
		return err
	}
	if sub.Queued() {
		s.logger.Info("Alert acknowledgment queued", "alert_id", alert.ID, "queue_id", sub.QueuedID)
	}
	return nil
}
