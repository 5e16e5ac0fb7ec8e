package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrInvalidLocation is returned for trace locations that cannot be
// resolved.
var ErrInvalidLocation = errors.New("invalid trace location")

const s3Scheme = "s3://"

// S3Options configures access to traces stored in S3 or an S3-compatible
// store.
type S3Options struct {
	Region         string
	Endpoint       string
	ForcePathStyle bool
	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// SourceOptions configures how locations are opened.
type SourceOptions struct {
	S3 S3Options
}

// IsRemote reports whether location refers to an object store.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, s3Scheme)
}

// Open returns a reader for a trace location: a local path or an
// s3://bucket/key URL.
func Open(ctx context.Context, location string, opts SourceOptions) (io.ReadCloser, error) {
	if !IsRemote(location) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}

		return f, nil
	}

	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, err
	}

	return openS3(ctx, bucket, key, opts.S3)
}

// LoadFrom opens and parses the trace at location.
func LoadFrom(ctx context.Context, location string, opts SourceOptions) (*Trace, error) {
	rc, err := Open(ctx, location, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return Parse(rc)
}

func parseS3Location(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key",
			ErrInvalidLocation, location)
	}

	return bucket, key, nil
}

func openS3(
	ctx context.Context,
	bucket, key string,
	opts S3Options,
) (io.ReadCloser, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}

	return out.Body, nil
}
