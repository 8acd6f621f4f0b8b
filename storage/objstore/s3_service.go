package objstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Service is the part of the S3 API the filesystem uses. HeadObject and
// ranged GetObject exist so columnar readers can fetch footers and single
// column chunks without downloading whole files.
type S3Service interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
}

// AWSS3Service is the concrete implementation of AWS S3.
type AWSS3Service struct {
	client *s3.Client
}

func NewAWSS3Service(client *s3.Client) *AWSS3Service {
	return &AWSS3Service{client: client}
}

func (a *AWSS3Service) GetObject(ctx context.Context, input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	return a.client.GetObject(ctx, input)
}

func (a *AWSS3Service) HeadObject(ctx context.Context, input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	return a.client.HeadObject(ctx, input)
}

func (a *AWSS3Service) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	return a.client.ListObjectsV2(ctx, input)
}

func (a *AWSS3Service) PutObject(ctx context.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	return a.client.PutObject(ctx, input)
}

func (a *AWSS3Service) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	return a.client.DeleteObject(ctx, input)
}

var _ S3Service = (*AWSS3Service)(nil)
