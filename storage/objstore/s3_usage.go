package objstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Usage keeps track of the number of cheap and expensive requests
type S3Usage struct {
	mu                sync.Mutex
	cheapRequests     int
	expensiveRequests int
}

// Cost per 1,000 requests in microdollars (1 dollar = 1,000,000 microdollars)
const (
	cheapCostPerThousand     = 400   // $0.0004 = 400 microdollars
	expensiveCostPerThousand = 5_000 // $0.005 = 5000 microdollars
)

// AddCheapRequest increments the number of cheap requests
func (s *S3Usage) AddCheapRequest() {
	s.mu.Lock()
	s.cheapRequests++
	s.mu.Unlock()
}

// AddExpensiveRequest increments the number of expensive requests
func (s *S3Usage) AddExpensiveRequest() {
	s.mu.Lock()
	s.expensiveRequests++
	s.mu.Unlock()
}

// TotalCost calculates the total cost and returns it formatted as USD.
func (s *S3Usage) TotalCost() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Calculate the total cost in microdollars
	cheapCost := (s.cheapRequests * cheapCostPerThousand) / 1000
	expensiveCost := (s.expensiveRequests * expensiveCostPerThousand) / 1000
	totalMicrodollars := cheapCost + expensiveCost

	// Convert microdollars to dollars and cents
	dollars := totalMicrodollars / 1_000_000
	cents := (totalMicrodollars % 1_000_000) / 10_000
	remainderMicrodollars := (totalMicrodollars % 10_000) / 100

	// Format the cost
	if dollars > 0 || cents > 0 {
		return fmt.Sprintf("$%d.%02d", dollars, cents)
	}
	return fmt.Sprintf("$0.%04d", remainderMicrodollars)
}

// S3ServiceWithUsage wraps an S3Service, attributing each request to a
// pricing group. GET and HEAD requests are cheap, PUT and LIST are expensive,
// DELETE is free.
type S3ServiceWithUsage struct {
	service S3Service
	usage   *S3Usage
}

func NewS3ServiceWithUsage(service S3Service) *S3ServiceWithUsage {
	return &S3ServiceWithUsage{service: service, usage: &S3Usage{}}
}

func (s *S3ServiceWithUsage) GetObject(ctx context.Context, input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	s.usage.AddCheapRequest()
	return s.service.GetObject(ctx, input)
}

func (s *S3ServiceWithUsage) HeadObject(ctx context.Context, input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	s.usage.AddCheapRequest()
	return s.service.HeadObject(ctx, input)
}

func (s *S3ServiceWithUsage) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	s.usage.AddExpensiveRequest()
	return s.service.ListObjectsV2(ctx, input)
}

func (s *S3ServiceWithUsage) PutObject(ctx context.Context, input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	s.usage.AddExpensiveRequest()
	return s.service.PutObject(ctx, input)
}

func (s *S3ServiceWithUsage) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	return s.service.DeleteObject(ctx, input)
}

// TotalCost formats the accumulated request cost as USD.
func (s *S3ServiceWithUsage) TotalCost() string {
	return s.usage.TotalCost()
}

var _ S3Service = (*S3ServiceWithUsage)(nil)
