package s3

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ErrObjectNotFound indicates a HeadMetadata target does not exist.
var ErrObjectNotFound = errors.New("object not found")

// isNotFoundError returns true if the error indicates the object or bucket
// doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	// Check typed errors
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}

	// Check AWS API error code. Head requests carry no body, so the SDK
	// synthesizes the code from the HTTP status.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket" || code == "404" {
			return true
		}
	}

	// Check error message for 404 patterns
	errStr := err.Error()
	return strings.Contains(errStr, "StatusCode: 404") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey")
}

// isAccessDeniedError returns true if the error indicates missing permissions.
func isAccessDeniedError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "AccessDenied" || code == "Forbidden" || code == "403" {
			return true
		}
	}

	return strings.Contains(err.Error(), "StatusCode: 403")
}

// IsCredentialsError returns true if the error indicates AWS credentials
// could not be resolved: a missing profile, empty credential files, or an
// exhausted provider chain.
func IsCredentialsError(err error) bool {
	if err == nil {
		return false
	}

	var profileErr config.SharedConfigProfileNotExistError
	if errors.As(err, &profileErr) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "failed to retrieve credentials") ||
		strings.Contains(errStr, "failed to refresh cached credentials") ||
		strings.Contains(errStr, "no EC2 IMDS role found") ||
		strings.Contains(errStr, "static credentials are empty") ||
		strings.Contains(errStr, "failed to get shared config profile")
}
