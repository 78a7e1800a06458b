package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
	ErrorClassUniqueViolation
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505":
			return ErrorClassUniqueViolation
		case "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports a 23505 error, optionally restricted to one
// constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

var (
	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrOpportunityNotFound = errors.New("opportunity not found")
	ErrSaleRecordNotFound  = errors.New("sale record not found")
	ErrContractNotFound    = errors.New("contract not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrCompanyNotFound     = errors.New("company not found")
	ErrPersonNotFound      = errors.New("person not found")

	ErrOptimisticLockFailed = errors.New("optimistic lock failed")
	ErrDuplicateNumber      = errors.New("document number already in use")
	ErrSaleAlreadyRecorded  = errors.New("opportunity already has a sale record")
	ErrVehicleAlreadySold   = errors.New("vehicle is already sold")
	ErrStateConflict        = errors.New("row is not in the expected state")
)

// IsNotFound reports whether err is one of the lookup sentinels.
func IsNotFound(err error) bool {
	for _, target := range []error{
		ErrVehicleNotFound, ErrOpportunityNotFound, ErrSaleRecordNotFound,
		ErrContractNotFound, ErrInvoiceNotFound, ErrCompanyNotFound, ErrPersonNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
