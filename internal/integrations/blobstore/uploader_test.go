package blobstore

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	lastIn   *s3.PutObjectInput
	lastBody []byte
	err      error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastIn = in
	if in.Body != nil {
		f.lastBody, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "bucket")
	require.ErrorContains(t, err, "must not be nil")

	_, err = New(&fakeS3{}, " ")
	require.ErrorContains(t, err, "bucket")
}

func TestVoiceKey(t *testing.T) {
	require.Equal(t, "voice_messages/42/2024-01-01/7.ogg", VoiceKey("42", 7, "2024-01-01"))
}

func TestUploadVoice_PutsObject(t *testing.T) {
	api := &fakeS3{}
	u, err := New(api, "voice-bucket")
	require.NoError(t, err)

	key, err := u.UploadVoice(context.Background(), []byte("OggS"), "42", 7, "2024-01-01")
	require.NoError(t, err)
	require.Equal(t, "voice_messages/42/2024-01-01/7.ogg", key)

	require.Equal(t, "voice-bucket", aws.ToString(api.lastIn.Bucket))
	require.Equal(t, key, aws.ToString(api.lastIn.Key))
	require.Equal(t, "audio/ogg", aws.ToString(api.lastIn.ContentType))
	require.Equal(t, int64(4), aws.ToInt64(api.lastIn.ContentLength))
	require.Equal(t, []byte("OggS"), api.lastBody)
}

func TestUploadVoice_APIError(t *testing.T) {
	u, err := New(&fakeS3{err: errors.New("access denied")}, "b")
	require.NoError(t, err)

	key, err := u.UploadVoice(context.Background(), []byte("a"), "42", 1, "2024-01-01")
	require.ErrorContains(t, err, "access denied")
	require.Empty(t, key)
}

func TestUploadVoice_ServiceErrorCode(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "The specified bucket does not exist"}
	u, err := New(&fakeS3{err: apiErr}, "missing")
	require.NoError(t, err)

	_, err = u.UploadVoice(context.Background(), []byte("a"), "42", 1, "2024-01-01")
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	require.Equal(t, "NoSuchBucket", uploadErr.Code)
	require.Equal(t, "voice_messages/42/2024-01-01/1.ogg", uploadErr.Key)
	require.ErrorIs(t, err, apiErr)
	require.Contains(t, err.Error(), "(NoSuchBucket)")
}

func TestUploadVoice_InvalidInput(t *testing.T) {
	api := &fakeS3{}
	u, err := New(api, "b")
	require.NoError(t, err)

	_, err = u.UploadVoice(context.Background(), nil, "42", 1, "2024-01-01")
	require.Error(t, err)
	_, err = u.UploadVoice(context.Background(), []byte("a"), "", 1, "2024-01-01")
	require.Error(t, err)
	_, err = u.UploadVoice(context.Background(), []byte("a"), "42", 1, "")
	require.Error(t, err)
	require.Nil(t, api.lastIn)
}

func TestNewS3Client_CustomEndpoint(t *testing.T) {
	c := NewS3Client(aws.Config{Region: "ru-central1"}, DefaultEndpoint)
	opts := c.Options()
	require.Equal(t, DefaultEndpoint, aws.ToString(opts.BaseEndpoint))
	require.True(t, opts.UsePathStyle)

	c = NewS3Client(aws.Config{Region: "us-east-1"}, "")
	require.Nil(t, c.Options().BaseEndpoint)
	require.False(t, c.Options().UsePathStyle)
}
