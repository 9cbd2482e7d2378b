package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/vecserve/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockS3Client struct {
	mock.Mock
	objects map[string][]byte
}

func newMockClient() *MockS3Client {
	return &MockS3Client{objects: make(map[string][]byte)}
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.HeadObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

// GetObject serves ranges from the in-memory objects map.
func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.Called(ctx, params)

	data, ok := m.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	start, end := int64(0), int64(len(data))-1
	if r := aws.ToString(params.Range); r != "" {
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
	}
	body := data[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(data))),
	}, nil
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *MockS3Client) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (m *MockS3Client) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (m *MockS3Client) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (m *MockS3Client) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestStore_Open(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	store := NewStore(client, "bucket", "snap")

	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "snap/vectors.bin"
	})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(42)}, nil)

	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "snap/missing.bin"
	})).Return(nil, &types.NotFound{})

	b, err := store.Open(ctx, "vectors.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(42), b.Size())

	_, err = store.Open(ctx, "missing.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	client.AssertExpectations(t)
}

func TestStore_ReadAtAndBytes(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	store := NewStore(client, "bucket", "")

	payload := []byte("0123456789abcdef")
	client.objects["v.bin"] = payload

	client.On("HeadObject", mock.Anything, mock.Anything).
		Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(payload)))}, nil)
	client.On("GetObject", mock.Anything, mock.Anything)

	b, err := store.Open(ctx, "v.bin")
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "2345", string(buf))

	n, err = b.ReadAt(ctx, buf, 14)
	assert.Equal(t, 2, n)
	assert.Equal(t, io.EOF, err)

	_, err = b.ReadAt(ctx, buf, 16)
	assert.Equal(t, io.EOF, err)

	m, ok := b.(blobstore.Mappable)
	require.True(t, ok)
	all, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, payload, all)
}

func TestStore_Put(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	store := NewStore(client, "bucket", "out")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "out/ids.json"
	})).Return(nil)

	require.NoError(t, store.Put(ctx, "ids.json", []byte(`["a"]`)))
	assert.Equal(t, []byte(`["a"]`), client.objects["out/ids.json"])
	client.AssertExpectations(t)
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"typed NotFound", &types.NotFound{}, true},
		{"typed NoSuchKey", fmt.Errorf("wrapped: %w", &types.NoSuchKey{}), true},
		{"generic 404", &smithy.GenericAPIError{Code: "NotFound"}, true},
		{"no bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFound(tt.err))
		})
	}
}
