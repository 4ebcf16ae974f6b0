package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	vodpipeerrors "github.com/streamforge/vodpipe/errors"
)

// S3Backend is the cloud Backend implementation, wrapping
// github.com/aws/aws-sdk-go's service/s3 the same way the teacher's
// clients.S3Client does (PresignS3, GetObject), generalized to the full C1
// contract. Compose uses a true native operation (UploadPartCopy +
// CompleteMultipartUpload) rather than a download/re-upload round trip.
type S3Backend struct {
	Client *s3.S3
	Bucket string
}

func NewS3Backend(client *s3.S3, bucket string) *S3Backend {
	return &S3Backend{Client: client, Bucket: bucket}
}

func (b *S3Backend) Put(ctx context.Context, objectPath string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	_, err = b.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(objectPath),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	out, err := b.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, vodpipeerrors.NewNotFoundError(objectPath, err)
		}
		return nil, vodpipeerrors.NewStorageUnavailableError(err)
	}
	return out.Body, nil
}

func (b *S3Backend) Delete(ctx context.Context, objectPath string) error {
	_, err := b.Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(objectPath),
	})
	// S3 DeleteObject is already idempotent: a missing key returns success.
	if err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	return nil
}

func (b *S3Backend) DeletePrefix(ctx context.Context, prefix string) error {
	listing, err := b.List(ctx, prefix, "")
	if err != nil {
		return err
	}
	for _, entry := range listing.Files {
		if err := b.Delete(ctx, entry.Key); err != nil {
			return err
		}
	}
	return nil
}

func (b *S3Backend) Exists(ctx context.Context, objectPath string) (bool, error) {
	_, err := b.Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(objectPath),
	})
	if err == nil {
		return true, nil
	}
	if isNotFoundErr(err) {
		return false, nil
	}
	return false, vodpipeerrors.NewStorageUnavailableError(err)
}

func (b *S3Backend) List(ctx context.Context, prefix string, delimiter string) (Listing, error) {
	var listing Listing
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.Bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	for {
		out, err := b.Client.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return Listing{}, vodpipeerrors.NewStorageUnavailableError(err)
		}
		for _, obj := range out.Contents {
			listing.Files = append(listing.Files, Entry{Key: aws.StringValue(obj.Key), Size: aws.Int64Value(obj.Size)})
		}
		for _, p := range out.CommonPrefixes {
			listing.CommonPrefixes = append(listing.CommonPrefixes, aws.StringValue(p.Prefix))
		}
		if !aws.BoolValue(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	return listing, nil
}

func (b *S3Backend) Presign(ctx context.Context, objectPath string, ttl time.Duration) (string, error) {
	req, _ := b.Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(objectPath),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", vodpipeerrors.NewStorageUnavailableError(err)
	}
	return url, nil
}

// Compose concatenates parts into output using S3's native multipart-copy
// primitives: each part becomes one UploadPartCopy call into a single
// CompleteMultipartUpload, avoiding a download/re-upload round trip
// (spec.md §4.1's "native compose op").
func (b *S3Backend) Compose(ctx context.Context, output string, parts []string) error {
	for _, part := range parts {
		exists, err := b.Exists(ctx, part)
		if err != nil {
			return err
		}
		if !exists {
			return vodpipeerrors.NewNotFoundError(part, nil)
		}
	}

	created, err := b.Client.CreateMultipartUploadWithContext(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(output),
	})
	if err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	uploadID := created.UploadId

	var completed []*s3.CompletedPart
	for i, part := range parts {
		partNumber := int64(i + 1)
		copyResult, err := b.Client.UploadPartCopyWithContext(ctx, &s3.UploadPartCopyInput{
			Bucket:     aws.String(b.Bucket),
			Key:        aws.String(output),
			UploadId:   uploadID,
			PartNumber: aws.Int64(partNumber),
			CopySource: aws.String(fmt.Sprintf("%s/%s", b.Bucket, part)),
		})
		if err != nil {
			_, _ = b.Client.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
				Bucket: aws.String(b.Bucket), Key: aws.String(output), UploadId: uploadID,
			})
			return vodpipeerrors.NewStorageUnavailableError(err)
		}
		completed = append(completed, &s3.CompletedPart{
			ETag:       copyResult.CopyPartResult.ETag,
			PartNumber: aws.Int64(partNumber),
		})
	}

	_, err = b.Client.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.Bucket),
		Key:             aws.String(output),
		UploadId:        uploadID,
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return vodpipeerrors.NewStorageUnavailableError(err)
	}
	return nil
}

func isNotFoundErr(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound", "404":
			return true
		}
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}
