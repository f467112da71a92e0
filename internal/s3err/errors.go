package s3err

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"

	"simples3/internal/bucketreg"
	"simples3/internal/cors"
	"simples3/internal/credential"
	"simples3/internal/lifecycle"
	"simples3/internal/metadata"
	"simples3/internal/multipart"
	"simples3/internal/objectstore"
	"simples3/internal/pathmap"
	"simples3/internal/policy"
	"simples3/internal/s3"
	"simples3/internal/sigv4"
)

type APIError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e APIError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	AccessDenied                       = APIError{Code: "AccessDenied", Message: "Access Denied", StatusCode: http.StatusForbidden}
	InvalidAccessKeyID                 = APIError{Code: "InvalidAccessKeyId", Message: "The AWS Access Key Id you provided does not exist in our records.", StatusCode: http.StatusForbidden}
	SignatureDoesNotMatch              = APIError{Code: "SignatureDoesNotMatch", Message: "The request signature we calculated does not match the signature you provided.", StatusCode: http.StatusForbidden}
	RequestTimeTooSkewed               = APIError{Code: "RequestTimeTooSkewed", Message: "The difference between the request time and the current time is too large.", StatusCode: http.StatusForbidden}
	RequestTimeout                     = APIError{Code: "RequestTimeout", Message: "Your socket connection to the server was not read from or written to within the timeout period.", StatusCode: http.StatusBadRequest}
	NoSuchBucket                       = APIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist.", StatusCode: http.StatusNotFound}
	NoSuchBucketPolicy                 = APIError{Code: "NoSuchBucketPolicy", Message: "The bucket policy does not exist.", StatusCode: http.StatusNotFound}
	NoSuchCORSConfiguration            = APIError{Code: "NoSuchCORSConfiguration", Message: "The CORS configuration does not exist.", StatusCode: http.StatusNotFound}
	NoSuchKey                          = APIError{Code: "NoSuchKey", Message: "The specified key does not exist.", StatusCode: http.StatusNotFound}
	NoSuchUpload                       = APIError{Code: "NoSuchUpload", Message: "The specified multipart upload does not exist.", StatusCode: http.StatusNotFound}
	NoSuchLifecycleConfiguration       = APIError{Code: "NoSuchLifecycleConfiguration", Message: "The lifecycle configuration does not exist.", StatusCode: http.StatusNotFound}
	BucketAlreadyOwnedByYou            = APIError{Code: "BucketAlreadyOwnedByYou", Message: "Your previous request to create the named bucket succeeded and you already own it.", StatusCode: http.StatusConflict}
	BucketAlreadyExists                = APIError{Code: "BucketAlreadyExists", Message: "The requested bucket name is not available.", StatusCode: http.StatusConflict}
	BucketNotEmpty                     = APIError{Code: "BucketNotEmpty", Message: "The bucket you tried to delete is not empty.", StatusCode: http.StatusConflict}
	InvalidBucketName                  = APIError{Code: "InvalidBucketName", Message: "The specified bucket is not valid.", StatusCode: http.StatusBadRequest}
	EntityTooLarge                     = APIError{Code: "EntityTooLarge", Message: "Your proposed upload exceeds the maximum allowed object size.", StatusCode: http.StatusRequestEntityTooLarge}
	EntityTooSmall                     = APIError{Code: "EntityTooSmall", Message: "Your proposed upload is smaller than the minimum allowed size.", StatusCode: http.StatusBadRequest}
	InvalidRange                       = APIError{Code: "InvalidRange", Message: "The requested range is not satisfiable.", StatusCode: http.StatusRequestedRangeNotSatisfiable}
	InvalidPart                        = APIError{Code: "InvalidPart", Message: "One or more of the specified parts could not be found.", StatusCode: http.StatusBadRequest}
	InvalidPartOrder                   = APIError{Code: "InvalidPartOrder", Message: "The list of parts was not in ascending order.", StatusCode: http.StatusBadRequest}
	BadDigest                          = APIError{Code: "BadDigest", Message: "The Content-MD5 you specified did not match what we received.", StatusCode: http.StatusBadRequest}
	InvalidRequest                     = APIError{Code: "InvalidRequest", Message: "The request is malformed or invalid for this operation.", StatusCode: http.StatusBadRequest}
	InvalidArgument                    = APIError{Code: "InvalidArgument", Message: "One or more of the specified arguments is not valid.", StatusCode: http.StatusBadRequest}
	MalformedXML                       = APIError{Code: "MalformedXML", Message: "The XML you provided was not well-formed or did not validate against our published schema.", StatusCode: http.StatusBadRequest}
	MalformedPolicy                    = APIError{Code: "MalformedPolicy", Message: "The bucket policy document you provided is malformed.", StatusCode: http.StatusBadRequest}
	IllegalLocationConstraintException = APIError{
		Code:       "IllegalLocationConstraintException",
		Message:    "The specified location-constraint is not valid for this endpoint.",
		StatusCode: http.StatusBadRequest,
	}
	MethodNotAllowed = APIError{Code: "MethodNotAllowed", Message: "The specified method is not allowed against this resource.", StatusCode: http.StatusMethodNotAllowed}
	InternalError    = APIError{Code: "InternalError", Message: "We encountered an internal error. Please try again.", StatusCode: http.StatusInternalServerError}
	AccessDeniedExpired = APIError{Code: "AccessDenied", Message: "Request has expired.", StatusCode: http.StatusForbidden}
)

type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

func Write(w http.ResponseWriter, requestID string, apiErr APIError, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(apiErr.StatusCode)
	_ = xml.NewEncoder(w).Encode(errorResponse{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Resource:  resource,
		RequestID: requestID,
	})
}

// MapError translates an internal error into the S3 error code the wire
// protocol expects. Errors not recognized by any case fall back to
// InternalError rather than leaking internal detail.
func MapError(err error) APIError {
	var apiErr APIError
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		return InternalError
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, bucketreg.ErrNotFound):
		return NoSuchBucket
	case errors.Is(err, bucketreg.ErrExists):
		return BucketAlreadyExists
	case errors.Is(err, bucketreg.ErrWrongOwner):
		return AccessDenied
	case errors.Is(err, objectstore.ErrNoSuchKey):
		return NoSuchKey
	case errors.Is(err, objectstore.ErrEntityTooLarge):
		return EntityTooLarge
	case errors.As(err, &maxBytesErr):
		return EntityTooLarge
	case errors.Is(err, objectstore.ErrInvalidRange):
		return InvalidRange
	case errors.Is(err, objectstore.ErrBadDigest):
		return BadDigest
	case errors.Is(err, objectstore.ErrInvalidTagSet):
		return InvalidArgument
	case errors.Is(err, objectstore.ErrPreconditionFailed):
		return APIError{Code: "PreconditionFailed", Message: "At least one of the preconditions you specified did not hold.", StatusCode: http.StatusPreconditionFailed}
	case errors.Is(err, multipart.ErrNoSuchUpload):
		return NoSuchUpload
	case errors.Is(err, multipart.ErrInvalidPart):
		return InvalidPart
	case errors.Is(err, multipart.ErrInvalidPartOrder):
		return InvalidPartOrder
	case errors.Is(err, multipart.ErrEntityTooSmall):
		return EntityTooSmall
	case errors.Is(err, lifecycle.ErrNoSuchConfiguration):
		return NoSuchLifecycleConfiguration
	case errors.Is(err, cors.ErrNoSuchConfiguration):
		return NoSuchCORSConfiguration
	case errors.Is(err, credential.ErrInvalidAccessKeyID):
		return InvalidAccessKeyID
	case errors.Is(err, credential.ErrInactive):
		return InvalidAccessKeyID
	case errors.Is(err, credential.ErrAlreadyExists):
		return InvalidArgument
	case errors.Is(err, policy.ErrInvalidPolicy):
		return MalformedPolicy
	case errors.Is(err, pathmap.ErrInvalidKey):
		return InvalidArgument
	case errors.Is(err, metadata.ErrNotFound):
		return NoSuchKey
	case errors.Is(err, sigv4.ErrInvalidAccessKey):
		return InvalidAccessKeyID
	case errors.Is(err, sigv4.ErrClockSkew):
		return RequestTimeTooSkewed
	case errors.Is(err, sigv4.ErrPresignedExpired):
		return AccessDeniedExpired
	case errors.Is(err, sigv4.ErrInvalidPayloadHash), errors.Is(err, sigv4.ErrUnsupportedPayloadMode):
		return InvalidRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RequestTimeout
	case errors.Is(err, sigv4.ErrSignatureMismatch), errors.Is(err, sigv4.ErrInvalidCredentialScope), errors.Is(err, sigv4.ErrMalformedAuthorization), errors.Is(err, sigv4.ErrInvalidSignedHeaders), errors.Is(err, sigv4.ErrInvalidAmzDate):
		return SignatureDoesNotMatch
	case errors.Is(err, s3.ErrInvalidRequestPath):
		return InvalidBucketName
	default:
		return InternalError
	}
}
