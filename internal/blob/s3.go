package blob

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rotisserie/eris"
)

// s3API is the subset of the S3 client the bucket uses.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Bucket stores objects in an S3 bucket under an optional key prefix.
type S3Bucket struct {
	client s3API
	bucket string
	prefix string
}

// NewS3 loads the default AWS config and returns a bucket client.
func NewS3(ctx context.Context, region, bucket, prefix string) (*S3Bucket, error) {
	if bucket == "" {
		return nil, eris.New("blob: s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "blob: load aws config")
	}
	return newS3WithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newS3WithClient(client s3API, bucket, prefix string) *S3Bucket {
	return &S3Bucket{client: client, bucket: bucket, prefix: prefix}
}

// Get downloads the object for key.
func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(joinPrefix(b.prefix, key)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "blob: s3 get %s", key)
	}
	defer out.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: s3 read %s", key)
	}
	return data, nil
}

// Put uploads data with server-side encryption.
func (b *S3Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(joinPrefix(b.prefix, key)),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return eris.Wrapf(err, "blob: s3 put %s", key)
	}
	return nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (b *S3Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(joinPrefix(b.prefix, key)),
	})
	if err != nil {
		return eris.Wrapf(err, "blob: s3 delete %s", key)
	}
	return nil
}

// List pages through ListObjectsV2 and returns keys relative to the prefix.
func (b *S3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	full := joinPrefix(b.prefix, prefix)
	root := joinPrefix(b.prefix, "")
	var keys []string
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(full),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "blob: s3 list %s", prefix)
		}
		for _, obj := range out.Contents {
			k := aws.ToString(obj.Key)
			if root != "" {
				k = k[min(len(k), len(root)+1):]
			}
			keys = append(keys, k)
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

var _ Bucket = (*S3Bucket)(nil)
