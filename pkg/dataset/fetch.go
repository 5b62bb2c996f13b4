package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when the mirror has no object with the requested name.
var ErrNotFound = os.ErrNotExist

const userAgent = "spoken-to-signed-lexicon"

// DefaultResponseHeaderTimeout bounds the wait for a mirror to start
// answering. Bodies are not timed, archives can take long to stream.
const DefaultResponseHeaderTimeout = 30 * time.Second

// Fetcher opens named objects of a dataset mirror.
type Fetcher interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// S3Options configures access to s3:// mirrors.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// NewFetcher picks a transport from the source location:
// http(s)://host/prefix, s3://bucket/prefix or a local directory.
func NewFetcher(source string, s3opts S3Options) (Fetcher, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, errors.Wrapf(err, "parse source %q", source)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(source, DefaultResponseHeaderTimeout), nil
	case "s3":
		return NewS3Fetcher(u.Host, strings.Trim(u.Path, "/"), s3opts)
	case "file":
		return LocalFetcher(u.Path), nil
	case "":
		return LocalFetcher(source), nil
	default:
		return nil, errors.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

// HTTPFetcher reads objects below a base URL.
type HTTPFetcher struct {
	Base   string
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests fail when no response
// headers arrive within headerTimeout.
func NewHTTPFetcher(base string, headerTimeout time.Duration) *HTTPFetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &HTTPFetcher{
		Base:   strings.TrimSuffix(base, "/"),
		Client: &http.Client{Transport: transport},
	}
}

func (f *HTTPFetcher) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	target := f.Base + "/" + strings.TrimPrefix(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s", target)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", target)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, errors.Wrap(ErrNotFound, target)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", target, resp.Status)
	}
	return resp.Body, nil
}

// S3Fetcher reads objects from an S3-compatible bucket.
type S3Fetcher struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Fetcher connects to the endpoint; without static keys the AWS and
// MinIO environment variables are consulted.
func NewS3Fetcher(bucket, prefix string, opts S3Options) (*S3Fetcher, error) {
	if bucket == "" {
		return nil, errors.New("s3 source needs a bucket")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	creds := credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	if opts.AccessKey == "" {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}
	client, err := minio.New(endpoint, &minio.Options{Creds: creds, Secure: !opts.Insecure})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", endpoint)
	}
	return &S3Fetcher{client: client, bucket: bucket, prefix: prefix}, nil
}

func (f *S3Fetcher) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := path.Join(f.prefix, name)
	if _, err := f.client.StatObject(ctx, f.bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, errors.Wrapf(ErrNotFound, "s3://%s/%s", f.bucket, key)
		}
		return nil, errors.Wrapf(err, "stat s3://%s/%s", f.bucket, key)
	}
	obj, err := f.client.GetObject(ctx, f.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get s3://%s/%s", f.bucket, key)
	}
	return obj, nil
}

// LocalFetcher reads objects from a directory laid out like a mirror.
type LocalFetcher string

func (f LocalFetcher) Open(_ context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(string(f), filepath.FromSlash(name)))
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return file, nil
}
