package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MemoryS3Service is an in-memory implementation of the S3Service for
// testing. Safe for concurrent use since split readers share one client.
type MemoryS3Service struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryS3Service() *MemoryS3Service {
	return &MemoryS3Service{
		data: make(map[string][]byte),
	}
}

func (m *MemoryS3Service) GetObject(ctx context.Context, input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	data, ok := m.data[path.Join(*input.Bucket, *input.Key)]
	m.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	if input.Range != nil {
		start, end, err := parseByteRange(*input.Range, int64(len(data)))
		if err != nil {
			return nil, err
		}
		body := data[start : end+1]
		return &s3.GetObjectOutput{
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: aws.Int64(int64(len(body))),
			ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(data))),
		}, nil
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *MemoryS3Service) HeadObject(ctx context.Context, input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	data, ok := m.data[path.Join(*input.Bucket, *input.Key)]
	m.mu.Unlock()
	if !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *MemoryS3Service) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Get sorted list of keys that match the prefix
	var keys []string
	for key := range m.data {
		bucketAndPrefix := *input.Bucket + "/" + *input.Prefix
		if strings.HasPrefix(key, bucketAndPrefix) {
			keys = append(keys, strings.TrimPrefix(key, *input.Bucket+"/"))
		}
	}
	slices.Sort(keys)

	// Get the objects by sorted key
	var contents []types.Object
	for _, key := range keys {
		contents = append(contents, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(m.data[*input.Bucket+"/"+key]))),
		})
	}

	return &s3.ListObjectsV2Output{
		Contents: contents,
	}, nil
}

func (m *MemoryS3Service) PutObject(ctx context.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	buf, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.data[path.Join(*input.Bucket, *input.Key)] = buf
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *MemoryS3Service) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.data, path.Join(*input.Bucket, *input.Key))
	m.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// parseByteRange handles the "bytes=start-end" form used by ranged reads.
// end is clamped to the object's last byte like S3 does.
func parseByteRange(spec string, size int64) (start, end int64, err error) {
	value, ok := strings.CutPrefix(spec, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("unsupported range %q", spec)
	}
	if _, err := fmt.Sscanf(value, "%d-%d", &start, &end); err != nil {
		return 0, 0, fmt.Errorf("unsupported range %q", spec)
	}
	if start < 0 || start >= size || end < start {
		return 0, 0, fmt.Errorf("range %q out of bounds for %d byte object", spec, size)
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

var _ S3Service = (*MemoryS3Service)(nil)
