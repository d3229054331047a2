package core

// uploader.go is the throttled sequential submission loop.
//
// One run walks the ready records in input order, never reordering and never
// overlapping network calls. Each record is fully isolated: a payload
// construction failure or a rejected submission is logged and the loop
// advances. The fixed inter-request delay is a self-imposed rate limit
// toward the remote service, injected as a sleep function so tests run
// without real elapsed time.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// DefaultRequestDelay is the pause between consecutive submissions.
var DefaultRequestDelay = time.Second

// RunConfig holds everything one submission run needs. All four values must
// be non-empty before a run may start.
type RunConfig struct {
	Endpoint     string
	BearerToken  string
	TenantKey    string
	PlantProject string
}

// Validate checks the run precondition. Returns ConfigIncompleteError
// naming every missing value.
func (c RunConfig) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.BearerToken == "" {
		missing = append(missing, "bearer token")
	}
	if c.TenantKey == "" {
		missing = append(missing, "tenant key")
	}
	if c.PlantProject == "" {
		missing = append(missing, "plant project")
	}
	if len(missing) > 0 {
		return &ConfigIncompleteError{Missing: missing}
	}
	return nil
}

// Uploader submits ready records one at a time.
type Uploader struct {
	client SubmissionClient
	cfg    RunConfig
	delay  time.Duration

	// sleep and now are injection points for tests; the defaults are a
	// context-aware timer and time.Now.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	logger *slog.Logger
}

// NewUploader creates an uploader. A non-positive delay falls back to
// DefaultRequestDelay.
func NewUploader(client SubmissionClient, cfg RunConfig, delay time.Duration) *Uploader {
	if delay <= 0 {
		delay = DefaultRequestDelay
	}
	return &Uploader{
		client: client,
		cfg:    cfg,
		delay:  delay,
		sleep:  sleepContext,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Run submits every ready record from the given set, sequentially and in
// input order.
//
// The config precondition is checked once before any record is processed;
// failing it aborts the whole run with ConfigIncompleteError. Cancellation
// is checked at the top of each iteration; a cancelled run returns the
// partial result alongside the context error. Per-record failures never
// abort the run.
func (u *Uploader) Run(ctx context.Context, records []*InterventionRecord, onProgress ProgressFunc) (*RunResult, error) {
	if err := u.cfg.Validate(); err != nil {
		return nil, err
	}
	if onProgress == nil {
		onProgress = func(RunProgress) {}
	}

	var ready []*InterventionRecord
	for _, rec := range records {
		if rec.Ready() {
			ready = append(ready, rec)
		}
	}

	start := u.timestamp()
	result := &RunResult{
		TotalProcessed: len(ready),
		SuccessLog:     SuccessLog{StartTime: start, Records: []SuccessEntry{}},
		ErrorLog:       ErrorLog{StartTime: start, Records: []ErrorEntry{}},
		FailedRecords:  []*InterventionRecord{},
	}

	u.logger.Info("submission run starting", "ready", len(ready), "total", len(records))

	for i, rec := range ready {
		if err := ctx.Err(); err != nil {
			u.finalize(result, onProgress, len(ready))
			return result, err
		}

		onProgress(RunProgress{Current: i, Total: len(ready)})
		u.submitOne(ctx, rec, result)

		if i < len(ready)-1 {
			if err := u.sleep(ctx, u.delay); err != nil {
				u.finalize(result, onProgress, len(ready))
				return result, err
			}
		}
	}

	u.finalize(result, onProgress, len(ready))

	u.logger.Info("submission run complete",
		"processed", result.TotalProcessed,
		"succeeded", result.SuccessCount,
		"failed", result.ErrorCount,
	)
	return result, nil
}

// submitOne processes a single record: payload, one network call, one log
// entry. Every failure is caught here; nothing escapes to the loop.
func (u *Uploader) submitOne(ctx context.Context, rec *InterventionRecord, result *RunResult) {
	payload, err := BuildPayload(rec, u.cfg.PlantProject, u.now())
	if err != nil {
		u.recordFailure(result, rec, nil, err)
		return
	}

	resp, err := u.client.Submit(ctx, payload)
	if err != nil {
		u.recordFailure(result, rec, payload, err)
		return
	}

	result.SuccessLog.Records = append(result.SuccessLog.Records, SuccessEntry{
		FolioNo:   rec.FolioNo,
		Timestamp: u.timestamp(),
		Payload:   payload,
		Response:  resp,
	})
	result.SuccessLog.TotalSuccessful++
	result.SuccessCount++

	u.logger.Info("record submitted", "folio", rec.FolioNo, "id", resp.ID, "hid", resp.HID)
}

// recordFailure classifies err and appends an error log entry plus the
// record itself to the failed set for later export or retry.
func (u *Uploader) recordFailure(result *RunResult, rec *InterventionRecord, payload *SubmissionPayload, err error) {
	detail := ErrorDetail{Message: err.Error()}

	var rejection *APIRejectionError
	if errors.As(err, &rejection) {
		detail.Code = rejection.StatusCode
		detail.Details = rawOrQuoted(rejection.Body)
	}

	result.ErrorLog.Records = append(result.ErrorLog.Records, ErrorEntry{
		FolioNo:   rec.FolioNo,
		Timestamp: u.timestamp(),
		Payload:   payload,
		Error:     detail,
	})
	result.ErrorLog.TotalErrors++
	result.ErrorCount++
	result.FailedRecords = append(result.FailedRecords, rec)

	u.logger.Warn("record submission failed", "folio", rec.FolioNo, "error", err)
}

// finalize emits the closing progress event and stamps both logs. It runs
// on every exit path, including cancellation and the empty ready set.
func (u *Uploader) finalize(result *RunResult, onProgress ProgressFunc, total int) {
	onProgress(RunProgress{Current: total, Total: total})
	end := u.timestamp()
	result.SuccessLog.EndTime = end
	result.ErrorLog.EndTime = end
}

func (u *Uploader) timestamp() string {
	return u.now().UTC().Format(time.RFC3339)
}

// rawOrQuoted embeds a response body into the error log: verbatim when it is
// already valid JSON, JSON-quoted otherwise.
func rawOrQuoted(body string) json.RawMessage {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(body)
	return quoted
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
