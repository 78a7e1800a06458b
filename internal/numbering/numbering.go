// Package numbering issues contract and invoice numbers of the form
// PREFIX-YEAR-NNNNNN.
//
// Each document type has its own counter and every counter restarts at 1 on
// January 1st: the year is part of the counter key. The increment itself is
// delegated to an Allocator that must perform it atomically; this package
// never reads existing numbers to guess the next one.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/database"
)

type Scope string

const (
	ScopeContract Scope = "contract"
	ScopeInvoice  Scope = "invoice"
)

// MaxOrdinal is the largest ordinal that fits the six-digit field.
const MaxOrdinal = 999999

var ErrSequenceExhausted = errors.New("sequence exhausted for the year")

// Allocator atomically increments the (scope, year) counter and returns the
// new value. Two concurrent calls never observe the same value.
type Allocator interface {
	NextSequence(ctx context.Context, scope string, year int) (int64, error)
}

type Options struct {
	ContractPrefix string
	InvoicePrefix  string
	MaxAttempts    int
	BaseBackoff    time.Duration
	Now            func() time.Time
}

type Service struct {
	alloc Allocator
	opts  Options
	log   zerolog.Logger
}

func New(alloc Allocator, opts Options, log zerolog.Logger) *Service {
	if opts.ContractPrefix == "" {
		opts.ContractPrefix = "CTR"
	}
	if opts.InvoicePrefix == "" {
		opts.InvoicePrefix = "INV"
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 20 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{alloc: alloc, opts: opts, log: log.With().Str("component", "numbering").Logger()}
}

func (s *Service) CreateContractNumber(ctx context.Context) (string, error) {
	return s.Next(ctx, ScopeContract)
}

func (s *Service) CreateInvoiceNumber(ctx context.Context) (string, error) {
	return s.Next(ctx, ScopeInvoice)
}

func (s *Service) prefix(scope Scope) string {
	if scope == ScopeInvoice {
		return s.opts.InvoicePrefix
	}
	return s.opts.ContractPrefix
}

// Next allocates one number in scope, retrying failed allocations with
// backoff.
func (s *Service) Next(ctx context.Context, scope Scope) (string, error) {
	year := s.opts.Now().Year()

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		seq, err := s.alloc.NextSequence(ctx, string(scope), year)
		if err == nil {
			if seq < 1 || seq > MaxOrdinal {
				return "", apperr.Persistence("allocate "+string(scope)+" number",
					fmt.Errorf("%w: %d in %d", ErrSequenceExhausted, seq, year))
			}
			return Format(s.prefix(scope), year, seq), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		lastErr = err
		s.log.Warn().Err(err).Str("scope", string(scope)).Int("attempt", attempt).Msg("number allocation failed")
		if attempt < s.opts.MaxAttempts {
			if err := database.Sleep(ctx, database.Backoff(attempt, s.opts.BaseBackoff)); err != nil {
				return "", err
			}
		}
	}

	return "", s.exhausted(scope, lastErr)
}

// Issue allocates a number and hands it to persist. When persist reports the
// number as already taken, a fresh number is allocated and persist is called
// again. Any other persist error ends the attempt unchanged.
func (s *Service) Issue(ctx context.Context, scope Scope, persist func(ctx context.Context, number string) error) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		number, err := s.Next(ctx, scope)
		if err != nil {
			return "", err
		}

		err = persist(ctx, number)
		if err == nil {
			return number, nil
		}
		if !isConflict(err) {
			return "", err
		}

		lastErr = err
		s.log.Warn().Err(err).Str("scope", string(scope)).Str("number", number).Msg("number already taken, reallocating")
	}

	return "", &apperr.NumberingConflictError{Scope: string(scope), Attempts: s.opts.MaxAttempts, Err: lastErr}
}

func (s *Service) exhausted(scope Scope, err error) error {
	if isConflict(err) || database.IsRetryable(err) {
		return &apperr.NumberingConflictError{Scope: string(scope), Attempts: s.opts.MaxAttempts, Err: err}
	}
	return apperr.Persistence("allocate "+string(scope)+" number", err)
}

func isConflict(err error) bool {
	return errors.Is(err, database.ErrDuplicateNumber) || database.IsUniqueViolation(err, "")
}

func Format(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

// Parse splits a number produced by Format.
func Parse(number string) (prefix string, year int, seq int64, err error) {
	i := strings.LastIndex(number, "-")
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("malformed document number %q", number)
	}
	j := strings.LastIndex(number[:i], "-")
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("malformed document number %q", number)
	}

	year, err = strconv.Atoi(number[j+1 : i])
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed year in %q: %w", number, err)
	}
	seq, err = strconv.ParseInt(number[i+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed ordinal in %q: %w", number, err)
	}
	return number[:j], year, seq, nil
}
