package boundary

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"strings"

	"github.com/dirkpetersen/claudefs/pkg/claudefserrs"
)

// JSONReferralSerializer encodes a Referral as JSON. The real NFSv4.1
// FS_LOCATIONS wire form is an XDR attribute the transport layer owns;
// this stand-in gives callers and tests something concrete to encode
// against before that transport exists.
type JSONReferralSerializer struct{}

func (JSONReferralSerializer) Serialize(r Referral) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, claudefserrs.SerializationError(err.Error())
	}
	return b, nil
}

// XMLEncoder implements S3XMLEncoder over the standard library's XML
// marshaler. No third-party XML library appears anywhere in the
// corpus's dependency surface, so this is the one boundary component
// built on the standard library rather than an ecosystem package.
type XMLEncoder struct{}

func (XMLEncoder) Encode(w io.Writer, v any) error {
	enc := xml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return claudefserrs.SerializationError(err.Error())
	}
	return nil
}

// PrefixS3Router routes S3 HTTP requests by method and whether the
// path names a bucket-only or bucket+key resource, mirroring
// s3_router.rs's parse_path split without any query-string parsing.
type PrefixS3Router struct{}

func (PrefixS3Router) Route(method, path string) (S3Operation, error) {
	trimmed := strings.TrimPrefix(path, "/")
	hasKey := strings.Contains(trimmed, "/") && !strings.HasSuffix(trimmed, "/")

	switch strings.ToUpper(method) {
	case "GET":
		if hasKey {
			return S3OpGetObject, nil
		}
		return S3OpListObjects, nil
	case "PUT":
		if hasKey {
			return S3OpPutObject, nil
		}
		return S3OpCreateBucket, nil
	case "DELETE":
		if hasKey {
			return S3OpDeleteObject, nil
		}
		return S3OpDeleteBucket, nil
	case "HEAD":
		if hasKey {
			return S3OpHeadObject, nil
		}
		return S3OpHeadBucket, nil
	default:
		return S3OpUnknown, claudefserrs.ProtocolError("unsupported method " + method)
	}
}
