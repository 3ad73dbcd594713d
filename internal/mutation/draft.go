package mutation

import (
	"math"
	"strconv"
	"strings"

	"rainfall-dashboard/internal/apperrors"
	"rainfall-dashboard/internal/rainfall"
)

// Draft is the edit cursor: the single in-progress edit, holding raw user
// input. A zero Target means the draft creates a new record.
type Draft struct {
	Target rainfall.RecordID
	Year   string
	Amount string
}

// DraftFrom copies a record into a draft that targets it.
func DraftFrom(record rainfall.Record) Draft {
	return Draft{
		Target: record.ID,
		Year:   strconv.Itoa(record.Year),
		Amount: strconv.FormatFloat(record.Amount, 'f', -1, 64),
	}
}

// Editing reports whether the draft updates an existing record.
func (d Draft) Editing() bool {
	return d.Target.Valid()
}

// Input validates the raw fields and converts them to a request body.
func (d Draft) Input() (rainfall.Input, error) {
	yearText := strings.TrimSpace(d.Year)
	amountText := strings.TrimSpace(d.Amount)
	if yearText == "" {
		return rainfall.Input{}, apperrors.New(apperrors.CodeValidation, "Year is required")
	}
	if amountText == "" {
		return rainfall.Input{}, apperrors.New(apperrors.CodeValidation, "Amount is required")
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return rainfall.Input{}, apperrors.Wrap(apperrors.CodeValidation, "Year must be a whole number", err)
	}
	amount, err := strconv.ParseFloat(amountText, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return rainfall.Input{}, apperrors.Wrap(apperrors.CodeValidation, "Amount must be a number", err)
	}
	if amount < 0 {
		return rainfall.Input{}, apperrors.New(apperrors.CodeValidation, "Amount cannot be negative")
	}
	return rainfall.Input{Year: year, Amount: amount}, nil
}
