package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/happut/incubator-paimon/storage/objstore"
	"github.com/happut/incubator-paimon/util/httpu"
)

type S3FileSystem struct {
	client *objstore.S3ServiceWithUsage
	bucket string
	prefix string
}

const s3Protocol = "s3://"

func NewS3FileSystem(client objstore.S3Service, bucket, prefix string) *S3FileSystem {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3FileSystem{
		bucket: bucket,
		prefix: prefix,
		client: objstore.NewS3ServiceWithUsage(client),
	}
}

type NewS3FileSystemParams struct {
	// The S3 endpoint to use. Normally left blank but used for testing
	// against fakes and for S3-compatible stores.
	Endpoint string
	Region   string
	// The AWS credentials profile name to use instead of default when
	// credentials falls back to the credentials config file.
	Profile     string
	Credentials aws.CredentialsProvider
}

func NewS3FileSystemFromURI(uri string, params *NewS3FileSystemParams) (*S3FileSystem, error) {
	if params == nil {
		params = &NewS3FileSystemParams{}
	}
	bucket, prefix, err := parseS3URI(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 URI: %s", uri)
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithHTTPClient(httpu.NewClient("s3")),
		func(lo *config.LoadOptions) error {
			if params.Region != "" {
				lo.Region = params.Region
			}
			if params.Profile != "" {
				lo.SharedConfigProfile = params.Profile
			}
			if params.Credentials != nil {
				lo.Credentials = params.Credentials
			}
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(opts *s3.Options) {
		if params.Endpoint != "" {
			opts.BaseEndpoint = aws.String(params.Endpoint)
			// Bucket-in-host addressing can't reach a single test endpoint.
			opts.UsePathStyle = true
		}
	})

	return NewS3FileSystem(objstore.NewAWSS3Service(client), bucket, prefix), nil
}

func (fs *S3FileSystem) New(name string) File {
	if strings.HasPrefix(name, s3Protocol) {
		panic(fmt.Sprintf("creating a file with URI path (%s) not supported", name))
	}
	return &S3Object{
		bucket:   fs.bucket,
		key:      fs.prefix + name,
		name:     name,
		fs:       fs,
		buffer:   new(bytes.Buffer),
		fileMode: FILE_MODE_WRITE,
	}
}

func (fs *S3FileSystem) Open(name string) File {
	var bucket, key string
	if strings.HasPrefix(name, s3Protocol) {
		var err error
		bucket, key, err = parseS3URI(name)
		if err != nil {
			panic(fmt.Sprintf("invalid s3 URI: %s", name))
		}
	} else {
		key = fs.prefix + name
		bucket = fs.bucket
	}

	return &S3Object{
		bucket:   bucket,
		key:      key,
		name:     name,
		fs:       fs,
		size:     -1,
		fileMode: FILE_MODE_READ,
	}
}

func (fs *S3FileSystem) List(prefix string) ([]string, error) {
	var paths []string
	var continuationToken *string
	for {
		output, err := fs.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Bucket:            &fs.bucket,
			Prefix:            aws.String(fs.prefix + prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range output.Contents {
			paths = append(paths, strings.TrimPrefix(*obj.Key, fs.prefix))
		}
		if output.NextContinuationToken == nil {
			return paths, nil
		}
		continuationToken = output.NextContinuationToken
	}
}

// USDCost formats the cost of the S3 requests made so far.
func (fs *S3FileSystem) USDCost() string {
	return fs.client.TotalCost()
}

func parseS3URI(uri string) (string, string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 URI: %s", uri)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	return bucket, key, nil
}

var _ FileSystem = (*S3FileSystem)(nil)

type S3Object struct {
	bucket   string
	key      string
	name     string
	fs       *S3FileSystem
	buffer   *bytes.Buffer
	size     int64
	fileMode FileMode
}

func (o *S3Object) Name() string {
	return o.name
}

// ReadAt issues a ranged GET so columnar readers fetch only the byte ranges
// they ask for.
func (o *S3Object) ReadAt(p []byte, off int64) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	byteRange := fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)
	output, err := o.fs.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
		Range:  &byteRange,
	})
	if err != nil {
		if isNoSuchKeyErr(err) {
			return 0, fmt.Errorf("reading s3://%s/%s: %w", o.bucket, o.key, ErrNotFound)
		}
		return 0, err
	}
	defer output.Body.Close()

	n, err = io.ReadFull(output.Body, p)
	if err == io.ErrUnexpectedEOF || (err == nil && n < len(p)) {
		return n, io.EOF
	}
	return n, err
}

func (o *S3Object) Size() int64 {
	if o.fileMode == FILE_MODE_WRITE || o.size >= 0 {
		return o.size
	}

	output, err := o.fs.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
	})
	if err != nil {
		return 0
	}
	o.size = aws.ToInt64(output.ContentLength)
	return o.size
}

func (o *S3Object) Save() error {
	if o.fileMode == FILE_MODE_READ {
		panic("tried to save a read only file")
	}
	o.fileMode = FILE_MODE_READ
	b := o.buffer.Bytes()
	_, err := o.fs.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
		Body:   bytes.NewReader(b),
	})
	return err
}

// Write data to a buffer flushed by Save.
func (o *S3Object) Write(p []byte) (n int, err error) {
	if o.fileMode == FILE_MODE_READ {
		panic("tried to write to a read only file")
	}
	n, err = o.buffer.Write(p)
	o.size += int64(n)
	return n, err
}

func (o *S3Object) Delete() error {
	if o.fileMode == FILE_MODE_WRITE {
		panic("tried to delete a file being written")
	}
	_, err := o.fs.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: &o.bucket,
		Key:    &o.key,
	})
	return err
}

func (o *S3Object) URI() string {
	return s3Protocol + path.Join(o.bucket, o.key)
}

func isNoSuchKeyErr(err error) bool {
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}

var _ File = (*S3Object)(nil)
