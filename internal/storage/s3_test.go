package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects struct {
	objects map[string][]byte
	fail    bool
}

func (m *memObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.fail {
		return nil, errors.New("bucket unavailable")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *memObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func TestAnalysisArchive_RoundTrip(t *testing.T) {
	ctx := context.Background()
	objs := &memObjects{objects: map[string][]byte{}}
	a := NewAnalysisArchive(objs, "raw")
	a.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	key, err := a.PutAnalysis(ctx, 42, []byte(`{"summary":"요약"}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "analysis/42/20240301T120000-"), key)
	assert.True(t, strings.HasSuffix(key, ".json"))

	got, err := a.GetAnalysis(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"요약"}`, string(got))
}

func TestAnalysisArchive_UploadError(t *testing.T) {
	a := NewAnalysisArchive(&memObjects{fail: true}, "raw")
	_, err := a.PutAnalysis(context.Background(), 1, []byte("{}"))
	assert.Error(t, err)
}
