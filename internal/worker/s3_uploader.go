package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"visitor-tracker/internal/config"
	"visitor-tracker/internal/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI 는 S3Uploader 가 사용하는 S3 client 의 부분집합이다.
// *s3.Client 가 만족하며, 테스트에서는 fake 로 대체한다.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader 는 archive bucket 으로의 업로드를 담당한다.
//   - gzip+JSONL 바이트 업로드 (UploadBytesWithRetryCtx)
//   - 로컬 DLQ 파일 업로드 (UploadFileWithRetryCtx)
//
// 모든 업로드는 시도당 timeout 과 exponential backoff (최대 2초) 를 가진다.
type S3Uploader struct {
	bucket  string
	timeout time.Duration
	retries int
	backoff time.Duration

	metrics *metrics.Metrics
	client  PutObjectAPI
}

func NewS3Uploader(cfg config.Config, m *metrics.Metrics, client PutObjectAPI) *S3Uploader {
	if m == nil {
		m = metrics.New()
	}
	retries := cfg.S3AppRetries
	if retries <= 0 {
		retries = 1
	}
	timeout := cfg.S3Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &S3Uploader{
		bucket:  cfg.ArchiveBucket,
		timeout: timeout,
		retries: retries,
		backoff: 200 * time.Millisecond,
		metrics: m,
		client:  client,
	}
}

// NewS3Client 는 AWS 기본 credential chain 과 region 으로 client 를 만든다.
// SDK 자체 retry 는 끄고, 재시도는 S3Uploader 가 S3AppRetries 만큼 한다.
func NewS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	}), nil
}

// UploadBytesWithRetryCtx 는 메모리의 body 를 key 로 업로드한다.
// 재시도마다 reader 를 새로 만든다.
func (u *S3Uploader) UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error {
	return u.withRetry(ctx, func() error {
		return u.putObject(ctx, key, bytes.NewReader(body), int64(len(body)))
	})
}

// UploadFileWithRetryCtx 는 DLQ 파일을 업로드한다. 재시도 전에 Seek(0) 으로 되감는다.
func (u *S3Uploader) UploadFileWithRetryCtx(ctx context.Context, key string, f io.ReadSeeker, size int64) error {
	return u.withRetry(ctx, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return u.putObject(ctx, key, f, size)
	})
}

func (u *S3Uploader) withRetry(ctx context.Context, put func() error) error {
	var lastErr error
	backoff := u.backoff

	for attempt := 1; attempt <= u.retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := put()
		if err == nil {
			return nil
		}
		lastErr = err
		atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)

		if attempt == u.retries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// putObject 는 PutObject 1회 호출. 시도당 timeout 을 적용한다.
func (u *S3Uploader) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx2, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	_, err := u.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		Body:            body,
		ContentLength:   aws.Int64(size),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}
