package objstore

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/hrescak/Draftboard-sub002/internal/xerrors"
)

// S3Options configures an S3 (or S3-compatible) bucket.
type S3Options struct {
	Bucket string
	Region string

	// Endpoint overrides the AWS endpoint, e.g. for MinIO or SeaweedFS.
	Endpoint     string
	UsePathStyle bool

	// Static credentials; when empty the default AWS chain is used.
	AccessKeyID     string
	SecretAccessKey string

	HTTPTimeout time.Duration
}

// S3 implements Store against a single bucket.
type S3 struct {
	bucket  string
	api     *s3.Client
	presign *s3.PresignClient
}

// NewS3 loads AWS configuration and returns a bucket client.
func NewS3(ctx context.Context, o S3Options) (*S3, error) {
	if strings.TrimSpace(o.Bucket) == "" {
		return nil, xerrors.New("objstore: bucket is required")
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 30 * time.Second
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(&http.Client{Timeout: o.HTTPTimeout}),
	}
	if o.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(o.Region))
	}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}
	return NewS3FromConfig(cfg, o), nil
}

// NewS3FromConfig builds a client from an already loaded AWS config.
func NewS3FromConfig(cfg aws.Config, o S3Options) *S3 {
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		so.UsePathStyle = o.UsePathStyle
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
	})
	return &S3{bucket: o.Bucket, api: client, presign: s3.NewPresignClient(client)}
}

func (c *S3) PresignPut(ctx context.Context, key, contentType, cacheControl string, ttl time.Duration) (PresignedPut, error) {
	req, err := c.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return PresignedPut{}, xerrors.Wrapf(err, "presign put %s", key)
	}
	return PresignedPut{
		URL: req.URL,
		Headers: map[string]string{
			"Content-Type":  contentType,
			"Cache-Control": cacheControl,
		},
	}, nil
}

func (c *S3) Get(ctx context.Context, key string) (*Object, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, c.mapErr(err, "get", key)
	}
	return &Object{
		Body:          out.Body,
		ContentType:   aws.ToString(out.ContentType),
		CacheControl:  aws.ToString(out.CacheControl),
		ContentLength: aws.ToInt64(out.ContentLength),
		LastModified:  aws.ToTime(out.LastModified),
	}, nil
}

func (c *S3) Head(ctx context.Context, key string) (*Object, error) {
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, c.mapErr(err, "head", key)
	}
	return &Object{
		ContentType:   aws.ToString(out.ContentType),
		CacheControl:  aws.ToString(out.CacheControl),
		ContentLength: aws.ToInt64(out.ContentLength),
		LastModified:  aws.ToTime(out.LastModified),
	}, nil
}

func (c *S3) mapErr(err error, op, key string) error {
	if isS3NotFound(err) {
		return notFound(key)
	}
	return xerrors.Wrapf(err, "%s s3://%s/%s", op, c.bucket, key)
}

// isS3NotFound covers GetObject (NoSuchKey) and HeadObject, which has no
// body and so only reports a bare NotFound code.
func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
