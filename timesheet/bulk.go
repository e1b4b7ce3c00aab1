package timesheet

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// =============================================================================
// BULK IMPORT
// =============================================================================

// BulkSkip is a batch item that was not stored because an entry with the
// same key already exists (in the store or earlier in the batch).
type BulkSkip struct {
	Index     int
	Candidate Candidate
	Reason    string
}

// BulkError is a batch item that failed validation, access or lookup.
type BulkError struct {
	Index     int
	Candidate Candidate
	Code      string
	Message   string
}

// BulkResult partitions a batch. Every input index appears in exactly one
// of the three lists.
type BulkResult struct {
	Created []TimeEntry
	Skipped []BulkSkip
	Errors  []BulkError
}

// CreateMany imports a batch of entries. Unlike CreateOrMerge, a duplicate is
// skipped and reported rather than merged. Failures are recorded per item and
// the batch continues; only a cancelled context stops it early.
func (s *TimeEntryService) CreateMany(ctx context.Context, p Principal, items []Candidate) (*BulkResult, error) {
	res := &BulkResult{Created: []TimeEntry{}, Skipped: []BulkSkip{}, Errors: []BulkError{}}
	for i, c := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		entry, err := s.reconciler.Insert(ctx, p, c)
		switch {
		case err == nil:
			res.Created = append(res.Created, *entry)
		case isDuplicate(err):
			res.Skipped = append(res.Skipped, BulkSkip{
				Index: i, Candidate: c, Reason: "a time entry for this task and date already exists",
			})
		default:
			res.Errors = append(res.Errors, bulkError(i, c, err))
			if !IsClientError(err) {
				s.logger.Error("bulk item failed", zap.Int("index", i), zap.Error(err))
			}
		}
	}
	s.logger.Info("bulk import finished",
		zap.String("by", string(p.UserID)),
		zap.Int("created", len(res.Created)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("errors", len(res.Errors)))
	return res, nil
}

func bulkError(i int, c Candidate, err error) BulkError {
	be := BulkError{Index: i, Candidate: c, Message: err.Error()}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		be.Code = string(verr.Code)
	case errors.Is(err, ErrNotFound):
		be.Code = "NOT_FOUND"
	case errors.Is(err, ErrForbidden):
		be.Code = "FORBIDDEN"
	default:
		be.Code = "INTERNAL"
		be.Message = "internal error"
	}
	return be
}
