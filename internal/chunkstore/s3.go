// SPDX-License-Identifier: MIT

package chunkstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
)

// deleteBatchSize is the S3 DeleteObjects limit per call.
const deleteBatchSize = 1000

// S3Options configures the S3-compatible backend. Endpoint and path-style
// addressing support MinIO and other compatible stores.
type S3Options struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKeyID    string
	SecretKey      string
	ForcePathStyle bool
}

// S3 is the object-store backed chunk store. It issues presigned GET/PUT
// URLs so browsers can upload and download without proxying through the
// application server.
type S3 struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	logger  zerolog.Logger
}

var _ Store = (*S3)(nil)

// NewS3 builds the client from explicit options. Credentials are static; the
// default chain is not consulted so container deployments stay predictable.
func NewS3(ctx context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, domain.ErrInvalidArgument{Field: "bucket", Reason: "bucket must not be empty"}
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
		logger:  log.WithComponent("chunkstore.s3"),
	}, nil
}

func (s *S3) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return domain.ErrStorageUnavailable{Op: "put", Cause: err}
	}
	return nil
}

func (s *S3) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, domain.ErrNotFound{Kind: "chunk", ID: key}
		}
		return nil, domain.ErrStorageUnavailable{Op: "get", Cause: err}
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, domain.ErrStorageUnavailable{Op: "get", Cause: err}
	}
	return data, nil
}

func (s *S3) SaveInit(ctx context.Context, ref Ref, data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "data", Reason: "init segment must not be empty"}
	}
	return s.put(ctx, ref.InitKey(), data)
}

func (s *S3) SaveChunk(ctx context.Context, ref Ref, n uint64, data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "data", Reason: "chunk must not be empty"}
	}
	return s.put(ctx, ref.ChunkKey(n), data)
}

func (s *S3) GetInit(ctx context.Context, ref Ref) ([]byte, error) {
	return s.get(ctx, ref.InitKey())
}

func (s *S3) GetChunk(ctx context.Context, ref Ref, n uint64) ([]byte, error) {
	return s.get(ctx, ref.ChunkKey(n))
}

func (s *S3) GetObject(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, key)
}

func (s *S3) PutObject(ctx context.Context, key string, data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "data", Reason: "object must not be empty"}
	}
	return s.put(ctx, key, data)
}

func (s *S3) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, domain.ErrStorageUnavailable{Op: "head", Cause: err}
	}
	return true, nil
}

// listKeys pages through ListObjectsV2 continuation tokens until exhausted.
func (s *S3) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	for {
		out, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, domain.ErrStorageUnavailable{Op: "list", Cause: err}
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			return keys, nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

func (s *S3) ListChunkIDs(ctx context.Context, ref Ref) ([]uint64, error) {
	keys, err := s.listKeys(ctx, ref.Prefix())
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(keys))
	for _, key := range keys {
		name := key[strings.LastIndex(key, "/")+1:]
		if id, ok := parseChunkName(name); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DeleteAll removes every object under the prefix in batches of at most 1000
// keys per DeleteObjects call.
func (s *S3) DeleteAll(ctx context.Context, ref Ref) error {
	keys, err := s.listKeys(ctx, ref.Prefix())
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			batch = append(batch, types.ObjectIdentifier{Key: aws.String(key)})
		}
		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return domain.ErrStorageUnavailable{Op: "delete", Cause: err}
		}
	}
	s.logger.Debug().Str("recording_id", ref.RecordingID).Int("objects", len(keys)).
		Msg("deleted recording objects")
	return nil
}

func (s *S3) Assemble(ctx context.Context, ref Ref, w io.Writer) error {
	init, err := s.GetInit(ctx, ref)
	if err != nil {
		return err
	}
	if _, err := w.Write(init); err != nil {
		return err
	}
	ids, err := s.ListChunkIDs(ctx, ref)
	if err != nil {
		return err
	}
	for _, id := range ids {
		data, err := s.GetChunk(ctx, ref, id)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3) SupportsPresign() bool { return true }

func (s *S3) PresignUploadInit(ctx context.Context, ref Ref, ttl time.Duration) (string, error) {
	return s.presignPut(ctx, ref.InitKey(), ttl)
}

func (s *S3) PresignUploadChunk(ctx context.Context, ref Ref, n uint64, ttl time.Duration) (string, error) {
	return s.presignPut(ctx, ref.ChunkKey(n), ttl)
}

func (s *S3) presignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", domain.ErrStorageUnavailable{Op: "presign", Cause: err}
	}
	return req.URL, nil
}

func (s *S3) presignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", domain.ErrStorageUnavailable{Op: "presign", Cause: err}
	}
	return req.URL, nil
}

// PresignDownloads returns a presigned GET for the init segment plus one per
// chunk in ascending order, and for the extracted audio when present.
func (s *S3) PresignDownloads(ctx context.Context, ref Ref, ttl time.Duration) (DownloadURLs, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}

	initURL, err := s.presignGet(ctx, ref.InitKey(), ttl)
	if err != nil {
		return DownloadURLs{}, err
	}

	ids, err := s.ListChunkIDs(ctx, ref)
	if err != nil {
		return DownloadURLs{}, err
	}
	chunks := make([]ChunkURL, 0, len(ids))
	for _, id := range ids {
		u, err := s.presignGet(ctx, ref.ChunkKey(id), ttl)
		if err != nil {
			return DownloadURLs{}, err
		}
		chunks = append(chunks, ChunkURL{ChunkID: id, URL: u})
	}

	urls := DownloadURLs{InitSegment: initURL, Chunks: chunks, ExpiresIn: ttl}

	m4aKey := ref.OutputKey("audio.m4a")
	if ok, err := s.ObjectExists(ctx, m4aKey); err == nil && ok {
		if u, err := s.presignGet(ctx, m4aKey, ttl); err == nil {
			urls.M4A = u
		}
	}

	return urls, nil
}
