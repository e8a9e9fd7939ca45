package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// Payload is what leaves the machine on upload: the rendered report plus
// counts and a content hash. It carries no operator identity.
type Payload struct {
	ContentHash   string
	IssueCount    int
	CriticalCount int
	Body          []byte
}

// NewPayload renders r as JSON and hashes it.
func NewPayload(r *Report) (Payload, error) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, r); err != nil {
		return Payload{}, err
	}
	sum := sha256.Sum256(buf.Bytes())
	return Payload{
		ContentHash:   hex.EncodeToString(sum[:]),
		IssueCount:    r.Summary.Total,
		CriticalCount: r.Summary.Critical,
		Body:          buf.Bytes(),
	}, nil
}

// Uploader sends a payload to remote storage under key.
type Uploader interface {
	Upload(ctx context.Context, key string, p Payload) error
}

// MinioUploader stores payloads in an S3-compatible bucket.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

// NewMinioUploader connects to the S3-compatible endpoint (host:port).
func NewMinioUploader(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioUploader, error) {
	if endpoint == "" || bucket == "" {
		return nil, errors.New("upload endpoint and bucket are required")
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create storage client")
	}
	return &MinioUploader{client: mc, bucket: bucket}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, key string, p Payload) error {
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(p.Body), int64(len(p.Body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"content-sha256": p.ContentHash,
			"issue-count":    strconv.Itoa(p.IssueCount),
			"critical-count": strconv.Itoa(p.CriticalCount),
		},
	})
	return errors.Wrapf(err, "failed to upload %s to bucket %s", key, u.bucket)
}

// ObjectKey is the storage key for a report.
func ObjectKey(r *Report) string {
	return r.ScanID + ".json"
}
