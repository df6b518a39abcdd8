package errors

import (
	goerrors "errors"

	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"google.golang.org/api/googleapi"
)

// Class is the retry classification of a remote failure
type Class int

const (
	// ClassPermanent failures are returned to the caller as QUERY_FAILED or a specific code
	ClassPermanent Class = iota
	// ClassTransient failures are retried while connectivity holds
	ClassTransient
	ClassNotFound
	ClassAuth
	// ClassUnknown covers non-API errors (transport, decode); connectivity decides the outcome
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassNotFound:
		return "not_found"
	case ClassAuth:
		return "auth"
	case ClassUnknown:
		return "unknown"
	default:
		return "permanent"
	}
}

var rateLimitReasons = map[string]bool{
	"sharingRateLimitExceeded": true,
	"userRateLimitExceeded":    true,
	"rateLimitExceeded":        true,
	"backendError":             true,
}

// Classify inspects err for a googleapi.Error and maps it onto a Class
func Classify(err error) Class {
	var apiErr *googleapi.Error
	if !goerrors.As(err, &apiErr) {
		return ClassUnknown
	}

	switch apiErr.Code {
	case 401:
		return ClassAuth
	case 403:
		if len(apiErr.Errors) == 0 {
			return ClassTransient
		}
		for _, e := range apiErr.Errors {
			if rateLimitReasons[e.Reason] {
				return ClassTransient
			}
		}
		return ClassPermanent
	case 404:
		return ClassNotFound
	case 429, 500, 502, 503, 504:
		return ClassTransient
	}
	return ClassPermanent
}

// ClassifyGoogleAPIError converts a Drive failure into the AppError taxonomy
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	var apiErr *googleapi.Error
	if !goerrors.As(err, &apiErr) {
		logger.Error("Non-API error",
			logging.Err(err),
			logging.F("requestType", reqCtx.RequestType),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeQueryFailed, err.Error()).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var code string
	class := Classify(err)
	switch class {
	case ClassAuth:
		code = utils.ErrCodeAuthExpired
	case ClassNotFound:
		code = utils.ErrCodeFileNotFound
	case ClassTransient:
		code = utils.ErrCodeTransientServer
	default:
		switch apiErr.Code {
		case 400, 409:
			code = utils.ErrCodeInvalidArgument
		case 403:
			code = utils.ErrCodePermissionDenied
		default:
			code = utils.ErrCodeQueryFailed
		}
	}

	level := logger.Error
	if class == ClassNotFound {
		level = logger.Debug
	}
	level("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("class", class.String()),
		logging.F("message", apiErr.Message),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(class == ClassTransient).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if len(apiErr.Errors) > 0 {
		builder.WithDriveReason(apiErr.Errors[0].Reason)
		switch apiErr.Errors[0].Reason {
		case "storageQuotaExceeded":
			builder.WithContext("suggestedAction", "free up space in Google Drive or upgrade storage")
		case "insufficientFilePermissions":
			builder.WithContext("capability", "write_access_required")
		case "domainPolicy":
			builder.WithContext("suggestedAction", "contact domain administrator")
		}
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "run 'gosync auth login' to re-authenticate")
	case utils.ErrCodeFileNotFound:
		if len(reqCtx.FileIDs) > 0 {
			builder.WithContext("fileId", reqCtx.FileIDs[0])
		}
	}

	return utils.WrapAppError(builder.Build(), err)
}
