package api

import (
	"context"
	"time"

	"github.com/dl-alexandre/gosync/internal/errors"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"google.golang.org/api/drive/v3"
)

// RetryPolicy is applied uniformly to every remote call.
//
// Transient server errors (403 rate limits, 429, 5xx) sleep TransientDelay and
// retry without bound as long as Prober reports connectivity. Non-API errors
// get UnknownRetries extra attempts. A failed probe ends the call with
// INTERNET_UNREACHABLE so the caller can decide how long to wait.
type RetryPolicy struct {
	TransientDelay time.Duration
	UnknownRetries int
	Prober         Prober
	Clock          clockwork.Clock
}

// DefaultRetryPolicy uses a fixed 5s delay and one extra attempt for unknown errors
func DefaultRetryPolicy(prober Prober) RetryPolicy {
	return RetryPolicy{
		TransientDelay: utils.TransientRetryDelay,
		UnknownRetries: utils.UnknownErrorRetries,
		Prober:         prober,
		Clock:          clockwork.NewRealClock(),
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Prober == nil {
		p.Prober = AlwaysReachable{}
	}
	return p
}

// Client wraps the Drive service with the retry policy
type Client struct {
	service *drive.Service
	policy  RetryPolicy
	account string
	logger  logging.Logger
}

// NewClient creates a new Drive API client
func NewClient(service *drive.Service, account string, policy RetryPolicy, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Client{
		service: service,
		policy:  policy.withDefaults(),
		account: account,
		logger:  logger.With(logging.F("component", "remote")),
	}
}

// NewRequestContext creates a request context; the trace ID of ctx is reused when present
func NewRequestContext(ctx context.Context, account string, requestType types.RequestType) *types.RequestContext {
	traceID := logging.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return &types.RequestContext{
		Account:     account,
		TraceID:     traceID,
		RequestType: requestType,
	}
}

// RequestContext creates a request context for this client's account
func (c *Client) RequestContext(ctx context.Context, requestType types.RequestType, fileIDs ...string) *types.RequestContext {
	reqCtx := NewRequestContext(ctx, c.account, requestType)
	reqCtx.FileIDs = append(reqCtx.FileIDs, fileIDs...)
	return reqCtx
}

// WithParentIDs adds parent IDs to the request context
func (c *Client) WithParentIDs(reqCtx *types.RequestContext, parentIDs ...string) *types.RequestContext {
	reqCtx.ParentIDs = append(reqCtx.ParentIDs, parentIDs...)
	return reqCtx
}

// ExecuteWithRetry runs fn under the client's retry policy
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var zero T
	policy := client.policy
	logger := client.logger.WithTraceID(reqCtx.TraceID)

	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("fileIds", reqCtx.FileIDs),
	)

	start := policy.Clock.Now()
	unknownAttempts := 0

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			logger.Debug("API operation completed",
				logging.F("duration_ms", policy.Clock.Since(start).Milliseconds()),
				logging.F("attempts", attempt),
			)
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		class := errors.Classify(err)
		switch class {
		case errors.ClassTransient:
			if !policy.Prober.Reachable(ctx) {
				return zero, internetUnreachable(reqCtx, err, logger)
			}
		case errors.ClassUnknown:
			if !policy.Prober.Reachable(ctx) {
				return zero, internetUnreachable(reqCtx, err, logger)
			}
			unknownAttempts++
			if unknownAttempts > policy.UnknownRetries {
				logger.Error("API operation failed after retry",
					logging.F("attempts", attempt),
					logging.Err(err),
				)
				return zero, errors.ClassifyGoogleAPIError("drive", err, reqCtx, logger)
			}
		default:
			return zero, errors.ClassifyGoogleAPIError("drive", err, reqCtx, logger)
		}

		logger.Warn("API operation failed, retrying",
			logging.F("attempt", attempt),
			logging.F("class", class.String()),
			logging.F("delay_ms", policy.TransientDelay.Milliseconds()),
			logging.Err(err),
		)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-policy.Clock.After(policy.TransientDelay):
		}
	}
}

// Execute runs fn under the retry policy for calls without a result
func Execute(ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() error) error {
	_, err := ExecuteWithRetry(ctx, client, reqCtx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func internetUnreachable(reqCtx *types.RequestContext, cause error, logger logging.Logger) error {
	logger.Warn("Connectivity probe failed", logging.Err(cause))
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInternetUnreachable, "internet connection unreachable").
		WithRetryable(true).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		Build(), cause)
}

// Service returns the underlying Drive service
func (c *Client) Service() *drive.Service {
	return c.service
}

// Account returns the account identity the client was created for
func (c *Client) Account() string {
	return c.account
}

// Clock returns the policy clock
func (c *Client) Clock() clockwork.Clock {
	return c.policy.Clock
}

func (c *Client) Logger() logging.Logger {
	return c.logger
}
