package respcache

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// maxDeleteBatch is the S3 DeleteObjects limit per call.
const maxDeleteBatch = 1000

// S3API is the subset of the S3 client S3Storage needs.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// S3Storage keeps buckets under a prefix of one S3 bucket:
//
//	<prefix>/<bucket name>/<base64url(request key)>
//
// Object names encode the request key so Keys needs only a listing. Bodies are
// zstd-compressed JSON envelopes. A bucket exists as long as it holds at least
// one response.
type S3Storage struct {
	client S3API
	bucket string
	prefix string
}

var _ Storage = (*S3Storage)(nil)

// NewS3Storage creates an S3Storage in bucket under prefix.
func NewS3Storage(client S3API, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *S3Storage) namePrefix(name string) string {
	if s.prefix == "" {
		return name + "/"
	}
	return s.prefix + "/" + name + "/"
}

func (s *S3Storage) rootPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

func (s *S3Storage) Open(_ context.Context, name string) (Bucket, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid bucket name %q", name)
	}
	return &s3Bucket{storage: s, prefix: s.namePrefix(name)}, nil
}

func (s *S3Storage) Buckets(ctx context.Context) ([]string, error) {
	root := s.rootPrefix()
	var names []string
	err := s.list(ctx, root, "/", func(out *s3.ListObjectsV2Output) {
		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), root), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *S3Storage) Delete(ctx context.Context, name string) (bool, error) {
	var keys []string
	err := s.list(ctx, s.namePrefix(name), "", func(out *s3.ListObjectsV2Output) {
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	})
	if err != nil {
		return false, err
	}

	for i := 0; i < len(keys); i += maxDeleteBatch {
		end := min(i+maxDeleteBatch, len(keys))
		ids := make([]s3types.ObjectIdentifier, 0, end-i)
		for _, k := range keys[i:end] {
			ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &s.bucket,
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return false, fmt.Errorf("S3 DeleteObjects (%d keys): %w", len(ids), err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return false, fmt.Errorf("S3 DeleteObjects: %d failed, first %s: %s",
				len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}

	log.Debug().Str("bucket", name).Int("objects", len(keys)).Msg("Response cache bucket deleted from S3")
	return len(keys) > 0, nil
}

// list pages through ListObjectsV2 under prefix.
func (s *S3Storage) list(ctx context.Context, prefix, delimiter string, fn func(*s3.ListObjectsV2Output)) error {
	input := &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return fmt.Errorf("S3 ListObjectsV2 prefix=%s: %w", prefix, err)
		}
		fn(out)
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

type s3Bucket struct {
	storage *S3Storage
	prefix  string
}

func (b *s3Bucket) objectKey(key string) string {
	return b.prefix + base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (b *s3Bucket) Match(ctx context.Context, key string) (*Response, bool, error) {
	objKey := b.objectKey(key)
	out, err := b.storage.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.storage.bucket,
		Key:    &objKey,
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("S3 GetObject %s: %w", objKey, err)
	}
	defer out.Body.Close()

	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", objKey, err)
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("zstd decode %s: %w", objKey, err)
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false, fmt.Errorf("unmarshal %s: %w", objKey, err)
	}
	return &resp, true, nil
}

func (b *s3Bucket) Put(ctx context.Context, key string, resp *Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(raw, nil)

	objKey := b.objectKey(key)
	_, err = b.storage.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          &b.storage.bucket,
		Key:             &objKey,
		Body:            bytes.NewReader(compressed),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", objKey, err)
	}

	log.Trace().
		Str("key", key).
		Int("raw_size", len(raw)).
		Int("stored_size", len(compressed)).
		Msg("Response cached in S3")
	return nil
}

func (b *s3Bucket) Delete(ctx context.Context, key string) (bool, error) {
	if _, ok, err := b.Match(ctx, key); err != nil || !ok {
		return false, err
	}
	objKey := b.objectKey(key)
	if _, err := b.storage.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &b.storage.bucket,
		Key:    &objKey,
	}); err != nil {
		return false, fmt.Errorf("S3 DeleteObject %s: %w", objKey, err)
	}
	return true, nil
}

func (b *s3Bucket) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.storage.list(ctx, b.prefix, "", func(out *s3.ListObjectsV2Output) {
		for _, obj := range out.Contents {
			enc := strings.TrimPrefix(aws.ToString(obj.Key), b.prefix)
			dec, err := base64.RawURLEncoding.DecodeString(enc)
			if err != nil {
				log.Warn().Str("object", aws.ToString(obj.Key)).Msg("Skipping foreign object in response cache prefix")
				continue
			}
			keys = append(keys, string(dec))
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
