package taxconfig

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/patrickmn/go-cache"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/repository"
)

// ErrConfigNotFound is returned when no table exists for the requested
// year, jurisdiction and filing status. Lookups never fall back to another year.
var ErrConfigNotFound = errors.New("tax configuration not found")

const (
	ckActiveYear = "active_year"
	ckTaxYear    = "tax_year_%d"
	ckBrackets   = "brackets_%d_%s_%s"
	ckDeduction  = "deduction_%d_%s_%s"
)

// Store is the read-through cached view of the versioned tax tables.
type Store struct {
	repo  repository.TaxConfigRepository
	cache *cache.Cache
}

// NewStore wraps repo. Tables only change through Import, so entries never
// expire on their own; a nil cache gets one with no expiration.
func NewStore(repo repository.TaxConfigRepository, c *cache.Cache) *Store {
	if c == nil {
		c = cache.New(cache.NoExpiration, 0)
	}
	return &Store{repo: repo, cache: c}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{ErrConfigNotFound}, args...)...)
	}
	return err
}

func (s *Store) GetActiveYear(ctx context.Context) (models.TaxYear, error) {
	if v, ok := s.cache.Get(ckActiveYear); ok {
		return v.(models.TaxYear), nil
	}
	ty, err := s.repo.GetActiveYear(ctx)
	if err != nil {
		return ty, notFound(err, "no active tax year")
	}
	s.cache.SetDefault(ckActiveYear, ty)
	return ty, nil
}

func (s *Store) GetTaxYear(ctx context.Context, year int) (models.TaxYear, error) {
	key := fmt.Sprintf(ckTaxYear, year)
	if v, ok := s.cache.Get(key); ok {
		return v.(models.TaxYear), nil
	}
	ty, err := s.repo.GetTaxYear(ctx, year)
	if err != nil {
		return ty, notFound(err, "tax year %d", year)
	}
	s.cache.SetDefault(key, ty)
	return ty, nil
}

func (s *Store) ListTaxYears(ctx context.Context) ([]models.TaxYear, error) {
	return s.repo.ListTaxYears(ctx)
}

// GetBrackets returns the ascending table for the key.
func (s *Store) GetBrackets(ctx context.Context, year int, status models.FilingStatus, jurisdiction models.Jurisdiction) ([]models.TaxBracket, error) {
	key := fmt.Sprintf(ckBrackets, year, jurisdiction, status)
	if v, ok := s.cache.Get(key); ok {
		return slices.Clone(v.([]models.TaxBracket)), nil
	}
	ty, err := s.GetTaxYear(ctx, year)
	if err != nil {
		return nil, err
	}
	brackets, err := s.repo.GetBrackets(ctx, ty.ID, jurisdiction, status)
	if err != nil {
		return nil, err
	}
	if len(brackets) == 0 {
		return nil, fmt.Errorf("%w: brackets for year %d, jurisdiction %s, filing status %s", ErrConfigNotFound, year, jurisdiction, status)
	}
	s.cache.SetDefault(key, brackets)
	return slices.Clone(brackets), nil
}

func (s *Store) GetStandardDeduction(ctx context.Context, year int, status models.FilingStatus, jurisdiction models.Jurisdiction) (models.StandardDeduction, error) {
	key := fmt.Sprintf(ckDeduction, year, jurisdiction, status)
	if v, ok := s.cache.Get(key); ok {
		return v.(models.StandardDeduction), nil
	}
	ty, err := s.GetTaxYear(ctx, year)
	if err != nil {
		return models.StandardDeduction{}, err
	}
	d, err := s.repo.GetStandardDeduction(ctx, ty.ID, jurisdiction, status)
	if err != nil {
		return d, notFound(err, "standard deduction for year %d, jurisdiction %s, filing status %s", year, jurisdiction, status)
	}
	s.cache.SetDefault(key, d)
	return d, nil
}

// Flush drops every cached lookup.
func (s *Store) Flush() {
	s.cache.Flush()
	logger.L.Info("Tax configuration cache flushed")
}
