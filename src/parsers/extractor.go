package parsers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
)

var (
	// ErrProviderFailure marks a single strategy that errored, panicked or timed out.
	ErrProviderFailure = errors.New("extraction provider failed")
	// ErrAllStrategiesFailed is returned when no strategy produced any result.
	ErrAllStrategiesFailed = errors.New("all extraction strategies failed")
	// ErrUnsupportedDocumentType is returned for documents that were never classified.
	ErrUnsupportedDocumentType = errors.New("document type not supported for extraction")
)

// Outcome is the result of running the strategy list over one document.
type Outcome struct {
	Result      models.ExtractionResult
	Method      models.ParsingMethod
	Provider    string
	Attempts    []models.ParsingAttempt
	NeedsReview bool
	Failed      bool
}

// Extractor tries providers in order and accepts the first result whose
// confidence reaches the threshold.
type Extractor struct {
	providers []Provider
	threshold float64
	timeout   time.Duration
	now       func() time.Time
}

// NewExtractor takes the threshold as given; values outside [0,1] are
// clamped. Range checks on configured values belong to config.Validate.
func NewExtractor(threshold float64, timeout time.Duration, providers ...Provider) *Extractor {
	return &Extractor{
		providers: providers,
		threshold: clampConfidence(threshold),
		timeout:   timeout,
		now:       time.Now,
	}
}

func (e *Extractor) Threshold() float64 { return e.threshold }

// Providers lists the configured strategy names in evaluation order.
func (e *Extractor) Providers() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

// Extract runs the strategy list. When nothing reaches the threshold the
// highest-confidence partial result is returned with NeedsReview set. When
// every strategy fails the outcome is marked Failed and the error wraps
// ErrAllStrategiesFailed. Every strategy tried leaves one attempt.
func (e *Extractor) Extract(ctx context.Context, docType models.DocumentType, rawText string) (Outcome, error) {
	if !docType.Known() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnsupportedDocumentType, docType)
	}
	log := logger.FromContext(ctx)

	var (
		out      Outcome
		best     *models.ExtractionResult
		bestFrom Provider
		lastErr  error
	)
	for _, p := range e.providers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		started := e.now()
		res, err := e.runProvider(ctx, p, docType, rawText)
		out.Attempts = append(out.Attempts, e.attempt(p, res, err, started))

		if err != nil {
			lastErr = err
			log.Warn("Extraction strategy failed", "provider", p.Name(), "documentType", docType, "error", err)
			continue
		}
		log.Debug("Extraction strategy finished", "provider", p.Name(), "documentType", docType, "confidence", res.Confidence)

		if res.Confidence >= e.threshold {
			out.Result = res
			out.Method = p.Method()
			out.Provider = p.Name()
			return out, nil
		}
		if best == nil || res.Confidence > best.Confidence {
			r := res
			best = &r
			bestFrom = p
		}
	}

	if best == nil {
		out.Failed = true
		if lastErr == nil {
			return out, fmt.Errorf("%w: no strategies configured", ErrAllStrategiesFailed)
		}
		return out, fmt.Errorf("%w: last error: %v", ErrAllStrategiesFailed, lastErr)
	}
	out.Result = *best
	out.Method = bestFrom.Method()
	out.Provider = bestFrom.Name()
	out.NeedsReview = true
	return out, nil
}

// runProvider bounds a strategy by the extractor timeout even when the
// provider ignores its context, and turns panics into failures.
func (e *Extractor) runProvider(ctx context.Context, p Provider, docType models.DocumentType, rawText string) (models.ExtractionResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		res models.ExtractionResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := p.TryExtract(ctx, docType, rawText)
		done <- result{res: res, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if r.err != nil {
		return models.ExtractionResult{}, fmt.Errorf("%w: %s: %v", ErrProviderFailure, p.Name(), r.err)
	}
	if r.res.Fields.Empty() {
		return models.ExtractionResult{}, fmt.Errorf("%w: %s: no fields extracted", ErrProviderFailure, p.Name())
	}
	if r.res.Fields.DocumentType == "" {
		r.res.Fields.DocumentType = docType
	}
	if r.res.Fields.DocumentType != docType {
		return models.ExtractionResult{}, fmt.Errorf("%w: %s: returned %s fields for a %s document",
			ErrProviderFailure, p.Name(), r.res.Fields.DocumentType, docType)
	}
	r.res.Confidence = clampConfidence(r.res.Confidence)
	return r.res, nil
}

func (e *Extractor) attempt(p Provider, res models.ExtractionResult, err error, started time.Time) models.ParsingAttempt {
	a := models.ParsingAttempt{
		ID:               uuid.NewString(),
		ParsingMethod:    p.Method(),
		Provider:         p.Name(),
		ProcessingTimeMs: e.now().Sub(started).Milliseconds(),
		CreatedAt:        e.now().UTC(),
	}
	if err != nil {
		a.ErrorMessage = err.Error()
		return a
	}
	a.ConfidenceScore = res.Confidence
	if data, mErr := json.Marshal(res.Fields); mErr == nil {
		a.ExtractedData = data
	}
	return a
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
