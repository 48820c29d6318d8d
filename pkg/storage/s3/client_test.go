package s3

import (
	"context"
	"errors"
	"io"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectAPI struct {
	puts    []*awss3.PutObjectInput
	bodies  [][]byte
	putErr  error
	headErr error
}

func (f *fakeObjectAPI) PutObject(_ context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(params.Body)
	f.puts = append(f.puts, params)
	f.bodies = append(f.bodies, body)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadBucket(context.Context, *awss3.HeadBucketInput, ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	return &awss3.HeadBucketOutput{}, f.headErr
}

func TestUploadWritesObject(t *testing.T) {
	api := &fakeObjectAPI{}
	client := newWithAPI(api, "docs", nil)

	ref, err := client.Upload(context.Background(), "/contracts/abc/contract-abc.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "s3://docs/contracts/abc/contract-abc.pdf", ref)

	require.Len(t, api.puts, 1)
	assert.Equal(t, "docs", *api.puts[0].Bucket)
	assert.Equal(t, "contracts/abc/contract-abc.pdf", *api.puts[0].Key)
	assert.Equal(t, "application/pdf", *api.puts[0].ContentType)
	assert.Equal(t, int64(4), *api.puts[0].ContentLength)
	assert.Equal(t, []byte("%PDF"), api.bodies[0])
}

func TestUploadRejectsEmptyKey(t *testing.T) {
	client := newWithAPI(&fakeObjectAPI{}, "docs", nil)
	_, err := client.Upload(context.Background(), " / ", "application/pdf", nil)
	require.Error(t, err)
}

func TestUploadWrapsAPIError(t *testing.T) {
	client := newWithAPI(&fakeObjectAPI{putErr: errors.New("boom")}, "docs", nil)
	_, err := client.Upload(context.Background(), "k", "text/plain", nil)
	require.ErrorContains(t, err, "boom")
}

func TestPing(t *testing.T) {
	require.NoError(t, newWithAPI(&fakeObjectAPI{}, "docs", nil).Ping(context.Background()))
	require.Error(t, newWithAPI(&fakeObjectAPI{headErr: errors.New("403")}, "docs", nil).Ping(context.Background()))

	var nilClient *Client
	require.Error(t, nilClient.Ping(context.Background()))
}
