// Package feeschedule serves the versioned flat-fee schedule: reads of the
// active fees and their history, and append-only fee changes.
package feeschedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/app/repository"
	"github.com/ManuelReschke/DocuPay/internal/pkg/cache"
)

const (
	ActiveListKey = "fees:active"
	ActiveListTTL = 5 * time.Minute
)

var (
	ErrDocumentTypeNotFound = errors.New("document type not found")
	ErrInvalidAmount        = errors.New("fee amount must be a non-negative amount with at most two decimals")
	ErrRegulatedType        = errors.New("regulated document types are priced by the tax calculator")
)

// Service reads and updates the fee schedule. The Redis client is optional;
// without it every read goes to the database.
type Service struct {
	fees  repository.FeeScheduleRepository
	types repository.DocumentTypeRepository
	rdb   *redis.Client
	now   func() time.Time
}

// UpdateResult reports the entry that is active after an update.
type UpdateResult struct {
	Entry   *models.FeeScheduleEntry `json:"entry"`
	Changed bool                     `json:"changed"`
}

func NewService(fees repository.FeeScheduleRepository, types repository.DocumentTypeRepository, rdb *redis.Client) *Service {
	return &Service{
		fees:  fees,
		types: types,
		rdb:   rdb,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NewServiceFromRepositories wires the service from the shared repositories.
func NewServiceFromRepositories(repos *repository.Repositories, rdb *redis.Client) *Service {
	return NewService(repos.FeeSchedule, repos.DocumentType, rdb)
}

// List returns every active document type with its active fee.
func (s *Service) List(ctx context.Context) ([]repository.FeeListing, error) {
	if s.rdb != nil {
		var cached []repository.FeeListing
		hit, err := cache.GetJSON(ctx, s.rdb, ActiveListKey, &cached)
		if err != nil {
			log.Warnf("[FeeSchedule] Cache read failed, falling back to database: %v", err)
		} else if hit {
			return cached, nil
		}
	}

	listings, err := s.fees.ListActive()
	if err != nil {
		return nil, fmt.Errorf("list active fees: %w", err)
	}

	if s.rdb != nil {
		if err := cache.SetJSON(ctx, s.rdb, ActiveListKey, listings, ActiveListTTL); err != nil {
			log.Warnf("[FeeSchedule] Cache write failed: %v", err)
		}
	}
	return listings, nil
}

// History returns the full append-only history of a document type, newest first.
func (s *Service) History(ctx context.Context, documentTypeID uint) ([]models.FeeScheduleEntry, error) {
	if _, err := s.documentType(documentTypeID); err != nil {
		return nil, err
	}
	entries, err := s.fees.History(documentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load fee history: %w", err)
	}
	return entries, nil
}

// Update sets the active fee of a document type. An amount equal to the
// current fee leaves the schedule untouched.
func (s *Service) Update(ctx context.Context, documentTypeID uint, amount decimal.Decimal, actor string) (*UpdateResult, error) {
	if amount.IsNegative() || !amount.Equal(amount.Round(2)) {
		return nil, ErrInvalidAmount
	}

	dt, err := s.documentType(documentTypeID)
	if err != nil {
		return nil, err
	}
	if dt.Regulated {
		return nil, ErrRegulatedType
	}

	entry, changed, err := s.fees.ReplaceActive(documentTypeID, amount.Round(2), actor, s.now())
	if err != nil {
		return nil, fmt.Errorf("replace active fee: %w", err)
	}

	if changed {
		log.Infof("[FeeSchedule] Fee for %s set to %s by %s (entry %d)", dt.Code, entry.Amount.StringFixed(2), actor, entry.ID)
		s.invalidate(ctx)
	}
	return &UpdateResult{Entry: entry, Changed: changed}, nil
}

// ActiveAmount returns the active flat fee of a document type. It returns
// gorm.ErrRecordNotFound when no fee is configured.
func (s *Service) ActiveAmount(ctx context.Context, documentTypeID uint) (decimal.Decimal, error) {
	entry, err := s.fees.GetActive(documentTypeID)
	if err != nil {
		return decimal.Zero, err
	}
	return entry.Amount, nil
}

func (s *Service) documentType(id uint) (*models.DocumentType, error) {
	dt, err := s.types.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentTypeNotFound
		}
		return nil, fmt.Errorf("load document type %d: %w", id, err)
	}
	return dt, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(context.WithoutCancel(ctx), ActiveListKey).Err(); err != nil {
		log.Warnf("[FeeSchedule] Failed to invalidate %s: %v", ActiveListKey, err)
	}
}
