package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const (
	DefaultEndpoint = "https://storage.yandexcloud.net"

	voiceContentType = "audio/ogg"
	voicePrefix      = "voice_messages"
)

// s3API is the minimal S3 interface required by Uploader.
// *s3.Client from aws-sdk-go-v2 satisfies this interface.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadError is returned when the object store rejects a put. Code is the
// service error code, such as AccessDenied or NoSuchBucket, when one is known.
type UploadError struct {
	Key  string
	Code string
	Err  error
}

func (e *UploadError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("blobstore: put object %q (%s): %v", e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("blobstore: put object %q: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader stores raw voice audio in an S3-compatible bucket.
type Uploader struct {
	api    s3API
	bucket string
}

func New(api s3API, bucket string) (*Uploader, error) {
	if api == nil {
		return nil, errors.New("blobstore: api must not be nil")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("blobstore: bucket must not be empty")
	}
	return &Uploader{api: api, bucket: bucket}, nil
}

// NewS3Client builds an S3 client for an S3-compatible endpoint. Path-style
// addressing is used whenever a custom endpoint is set.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	endpoint = strings.TrimSpace(endpoint)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// VoiceKey returns the object key for a voice message.
func VoiceKey(userID string, messageID int64, day string) string {
	return fmt.Sprintf("%s/%s/%s/%d.ogg", voicePrefix, userID, day, messageID)
}

// UploadVoice puts the audio under VoiceKey and returns the key.
func (u *Uploader) UploadVoice(ctx context.Context, audio []byte, userID string, messageID int64, day string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("blobstore: audio must not be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("blobstore: user id must not be empty")
	}
	if strings.TrimSpace(day) == "" {
		return "", errors.New("blobstore: day must not be empty")
	}

	key := VoiceKey(userID, messageID, day)
	_, err := u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(audio),
		ContentType:   aws.String(voiceContentType),
		ContentLength: aws.Int64(int64(len(audio))),
	})
	if err != nil {
		uploadErr := &UploadError{Key: key, Err: err}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			uploadErr.Code = apiErr.ErrorCode()
		}
		return "", uploadErr
	}
	return key, nil
}
