package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

// S3Options holds the settings for an S3-compatible bucket.
type S3Options struct {
	Endpoint        string // Custom endpoint (empty for AWS)
	Region          string // Defaults to "auto"
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string        // Base URL for object links (empty = presigned links)
	PresignTTL      time.Duration // Lifetime of presigned links
}

// IsConfigured reports whether bucket and credentials are set.
func (o *S3Options) IsConfigured() bool {
	return o.Bucket != "" && o.AccessKeyID != "" && o.SecretAccessKey != ""
}

// S3Store keeps recordings in an S3-compatible bucket.
type S3Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	publicURL  string
	presignTTL time.Duration
}

// NewS3Store creates a store for the bucket described by opts.
func NewS3Store(opts *S3Options) (*S3Store, error) {
	if !opts.IsConfigured() {
		return nil, fmt.Errorf("%w: s3 bucket and credentials are required", ErrNotConfigured)
	}

	client := createS3Client(opts)
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     opts.Bucket,
		publicURL:  opts.PublicURL,
		presignTTL: ttl,
	}, nil
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(opts *S3Options) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		opts.AccessKeyID,
		opts.SecretAccessKey,
		"",
	)

	region := opts.Region
	if region == "" {
		region = "auto"
	}

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = region
		},
	}

	if opts.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// List implements Store.
func (s *S3Store) List(ctx context.Context, folder string) ([]Object, error) {
	prefix := strings.Trim(folder, "/") + "/"
	var objects []Object
	var continuationToken *string

	for len(objects) < MaxListObjects {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}

		output, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, util.WrapError("list objects", err)
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if !keep(name) {
				continue
			}
			objects = append(objects, Object{
				Name:         name,
				URL:          s.objectURL(ctx, key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified).UTC(),
			})
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	if objects == nil {
		objects = []Object{}
	}
	return sortAndLimit(objects), nil
}

// objectURL returns the public link for key, or a presigned GET when no public
// base URL is configured. Presign failures yield an empty URL.
func (s *S3Store) objectURL(ctx context.Context, key string) string {
	if s.publicURL != "" {
		return publicURL(s.publicURL, key)
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		slog.Warn("failed to presign object url", "key", key, "error", err)
		return ""
	}
	return req.URL
}

// Upload implements Store.
func (s *S3Store) Upload(ctx context.Context, key, contentType string, body []byte) error {
	checkContentType(key, contentType, body)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return util.WrapError("upload object", err)
	}
	return nil
}

// Open implements Store.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}
		return nil, util.WrapError("get object", err)
	}
	return output.Body, nil
}

// Test implements Store by uploading and deleting a probe object.
func (s *S3Store) Test(ctx context.Context) error {
	testKey := fmt.Sprintf("voicebox-connection-test-%d.txt", time.Now().UnixNano())
	testContent := []byte("ZuidWest FM voicebox connection test")

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
