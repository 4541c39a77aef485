package nlu

import (
	"context"

	"go.uber.org/zap"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Extraction is the structured read of a single user message. Fields the
// extractor could not determine stay empty; it never guesses.
type Extraction struct {
	Intent       string     `json:"intent"` // BOOK | CANCEL | RESCHEDULE | ""
	DateText     string     `json:"date_text"`
	TimeText     string     `json:"time_text"`
	PatientName  string     `json:"patient_name"`
	PatientPhone string     `json:"patient_phone"`
	Confidence   Confidence `json:"confidence"`
}

// Empty is the all-null low-confidence shape returned on any failure.
func Empty() Extraction {
	return Extraction{Confidence: ConfidenceLow}
}

// Extractor reads structured entities out of free text. currentIntent, when
// known, is passed as a hint only.
type Extractor interface {
	Extract(ctx context.Context, message, currentIntent string) (Extraction, error)
}

// Safe wraps an Extractor with the must-never-throw contract: any error or
// panic from the inner extractor degrades to the empty low-confidence shape.
type Safe struct {
	inner Extractor
	log   *zap.Logger
}

func NewSafe(inner Extractor, log *zap.Logger) *Safe {
	if log == nil {
		log = zap.NewNop()
	}
	return &Safe{inner: inner, log: log}
}

func (s *Safe) Extract(ctx context.Context, message, currentIntent string) (out Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("extractor panicked", zap.Any("panic", r))
			out = Empty()
			err = nil
		}
	}()

	if s.inner == nil {
		return Empty(), nil
	}

	out, err = s.inner.Extract(ctx, message, currentIntent)
	if err != nil {
		s.log.Warn("extraction failed", zap.Error(err))
		return Empty(), nil
	}

	switch out.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		out.Confidence = ConfidenceLow
	}

	return out, nil
}
