package command

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/smithy-go"

	"opsbot/internal/paginate"
	"opsbot/internal/persist"
	"opsbot/internal/policy"
)

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Hint      string `json:"hint,omitempty"`
	Retryable bool   `json:"retryable"`
}

type ErrorEnvelope struct {
	Error   ErrorDetail `json:"error"`
	Details any         `json:"details,omitempty"`
}

func BuildErrorEnvelope(err error, details any) map[string]any {
	envelope := ErrorEnvelope{Error: Classify(err)}
	out := map[string]any{"error": envelope.Error}
	if details != nil {
		out["details"] = details
	}
	return out
}

// Classify maps err onto a stable code callers can switch on.
func Classify(err error) ErrorDetail {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorDetail{Code: "timeout", Message: msg, Hint: "Increase the command timeout or check AWS latency.", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorDetail{Code: "canceled", Message: msg, Hint: "Request was canceled before completion.", Retryable: true}
	}
	if errors.Is(err, policy.ErrAccessDenied) {
		return ErrorDetail{Code: "forbidden", Message: msg, Hint: "Check the auth section of the configuration.", Retryable: false}
	}
	if errors.Is(err, persist.ErrNotInitialized) {
		return ErrorDetail{Code: "not_initialized", Message: msg, Hint: "The persistence backend has not started.", Retryable: true}
	}
	if errors.Is(err, persist.ErrNotSerializable) {
		return ErrorDetail{Code: "not_serializable", Message: msg, Hint: "Only plain JSON data can be stored.", Retryable: false}
	}
	if errors.Is(err, ErrUsage) || errors.Is(err, ErrUnknownCommand) {
		return ErrorDetail{Code: "invalid_request", Message: msg, Hint: "See the help command for usage.", Retryable: false}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "InvalidClientTokenId", "ExpiredToken":
			return ErrorDetail{Code: "forbidden", Message: msg, Hint: "Check AWS credentials and IAM policies.", Retryable: false}
		case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException":
			return ErrorDetail{Code: "rate_limited", Message: msg, Hint: "Retry with backoff.", Retryable: true}
		case "ResourceNotFoundException", "NotFoundException", "AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist":
			return ErrorDetail{Code: "not_found", Message: msg, Hint: "Verify resource identifiers and region.", Retryable: false}
		case "ValidationException", "ValidationError", "InvalidParameterException", "InvalidParameterValue", "InvalidNextToken":
			return ErrorDetail{Code: "invalid_request", Message: msg, Hint: "Fix request parameters.", Retryable: false}
		default:
			return ErrorDetail{Code: "upstream_error", Message: msg, Hint: "AWS API error; verify inputs and retry.", Retryable: true}
		}
	}
	var upstream *paginate.UpstreamError
	if errors.As(err, &upstream) {
		return ErrorDetail{Code: "upstream_error", Message: msg, Hint: "The upstream API call failed; check connectivity and credentials.", Retryable: true}
	}

	if isInvalidRequestMessage(msg) {
		return ErrorDetail{Code: "invalid_request", Message: msg, Hint: "Fix request parameters.", Retryable: false}
	}

	return ErrorDetail{Code: "internal", Message: msg, Hint: "Check server logs for details.", Retryable: false}
}

func isInvalidRequestMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "required") || strings.Contains(lower, "invalid") || strings.Contains(lower, "missing")
}
