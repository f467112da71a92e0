package s3

import "net/http"

type Operation string

const (
	OperationUnknown                 Operation = "Unknown"
	OperationListBuckets             Operation = "ListBuckets"
	OperationCreateBucket            Operation = "CreateBucket"
	OperationDeleteBucket            Operation = "DeleteBucket"
	OperationHeadBucket              Operation = "HeadBucket"
	OperationGetBucketPolicy         Operation = "GetBucketPolicy"
	OperationPutBucketPolicy         Operation = "PutBucketPolicy"
	OperationDeleteBucketPolicy      Operation = "DeleteBucketPolicy"
	OperationGetBucketPolicyStatus   Operation = "GetBucketPolicyStatus"
	OperationGetBucketLifecycle      Operation = "GetBucketLifecycle"
	OperationPutBucketLifecycle      Operation = "PutBucketLifecycle"
	OperationDeleteBucketLifecycle   Operation = "DeleteBucketLifecycle"
	OperationGetBucketCors           Operation = "GetBucketCors"
	OperationPutBucketCors           Operation = "PutBucketCors"
	OperationDeleteBucketCors        Operation = "DeleteBucketCors"
	OperationListObjects             Operation = "ListObjectsV2"
	OperationDeleteObjects           Operation = "DeleteObjects"
	OperationPutObject               Operation = "PutObject"
	OperationGetObject               Operation = "GetObject"
	OperationHeadObject              Operation = "HeadObject"
	OperationDeleteObject            Operation = "DeleteObject"
	OperationCopyObject              Operation = "CopyObject"
	OperationGetObjectTagging        Operation = "GetObjectTagging"
	OperationPutObjectTagging        Operation = "PutObjectTagging"
	OperationDeleteObjectTagging     Operation = "DeleteObjectTagging"
	OperationCreateMultipartUpload   Operation = "CreateMultipartUpload"
	OperationUploadPart              Operation = "UploadPart"
	OperationCompleteMultipartUpload Operation = "CompleteMultipartUpload"
	OperationAbortMultipartUpload    Operation = "AbortMultipartUpload"
	OperationListMultipartUploads    Operation = "ListMultipartUploads"
	OperationListParts               Operation = "ListParts"
)

type DispatchQuery struct {
	ListType         string
	HasListType      bool
	HasPolicy        bool
	HasPolicyStatus  bool
	HasLifecycle     bool
	HasCors          bool
	HasTagging       bool
	HasDelete        bool
	Delimiter        string
	Prefix           string
	Continuation     string
	MaxKeys          string
	HasUploads       bool
	HasUploadID      bool
	HasPartNumber    bool
	UploadID         string
	PartNumber       string
	KeyMarker        string
	UploadIDMarker   string
	MaxUploads       string
	PartNumberMarker string
	MaxParts         string
	HasCopySource    bool
}

func ResolveOperation(method string, target RequestTarget, query DispatchQuery, headers http.Header) Operation {
	if target.Bucket == "" {
		if method == http.MethodGet {
			return OperationListBuckets
		}
		return OperationUnknown
	}

	if target.Key == "" {
		switch method {
		case http.MethodPut:
			if query.HasPolicy {
				return OperationPutBucketPolicy
			}
			if query.HasLifecycle {
				return OperationPutBucketLifecycle
			}
			if query.HasCors {
				return OperationPutBucketCors
			}
			return OperationCreateBucket
		case http.MethodDelete:
			if query.HasPolicy {
				return OperationDeleteBucketPolicy
			}
			if query.HasLifecycle {
				return OperationDeleteBucketLifecycle
			}
			if query.HasCors {
				return OperationDeleteBucketCors
			}
			return OperationDeleteBucket
		case http.MethodHead:
			return OperationHeadBucket
		case http.MethodPost:
			if query.HasDelete {
				return OperationDeleteObjects
			}
			return OperationUnknown
		case http.MethodGet:
			if query.HasPolicy {
				return OperationGetBucketPolicy
			}
			if query.HasPolicyStatus {
				return OperationGetBucketPolicyStatus
			}
			if query.HasLifecycle {
				return OperationGetBucketLifecycle
			}
			if query.HasCors {
				return OperationGetBucketCors
			}
			if query.HasUploads {
				return OperationListMultipartUploads
			}
			return OperationListObjects
		}
		return OperationUnknown
	}

	switch method {
	case http.MethodPost:
		if query.HasUploads {
			return OperationCreateMultipartUpload
		}
		if query.HasUploadID {
			return OperationCompleteMultipartUpload
		}
		return OperationUnknown
	case http.MethodPut:
		if query.HasTagging {
			return OperationPutObjectTagging
		}
		if query.HasUploadID || query.HasPartNumber {
			if query.UploadID != "" && query.PartNumber != "" {
				return OperationUploadPart
			}
			return OperationUnknown
		}
		if headers.Get("X-Amz-Copy-Source") != "" || query.HasCopySource {
			return OperationCopyObject
		}
		return OperationPutObject
	case http.MethodGet:
		if query.HasTagging {
			return OperationGetObjectTagging
		}
		if query.HasUploadID {
			return OperationListParts
		}
		return OperationGetObject
	case http.MethodHead:
		return OperationHeadObject
	case http.MethodDelete:
		if query.HasTagging {
			return OperationDeleteObjectTagging
		}
		if query.HasUploadID {
			return OperationAbortMultipartUpload
		}
		return OperationDeleteObject
	default:
		return OperationUnknown
	}
}
