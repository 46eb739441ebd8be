// Package artifact fetches fitted model artifacts from a file, an http(s)
// URL or an s3://bucket/key location.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"price-optimizer/internal/demand"
	"price-optimizer/pkg/platform"
)

// MaxArtifactBytes bounds how much of an artifact is read from any source.
const MaxArtifactBytes = 16 << 20

// ObjectGetter is the subset of the S3 client the loader uses.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loaded is a parsed model together with where it came from.
type Loaded struct {
	Model    *demand.FittedModel
	Source   string
	Checksum string
	LoadedAt time.Time
}

// Loader resolves an artifact location to a fitted model.
type Loader struct {
	http     *platform.HTTPClient
	s3       ObjectGetter
	region   string
	maxBytes int64
	logger   zerolog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the client used for http(s) sources.
func WithHTTPClient(c *platform.HTTPClient) Option {
	return func(l *Loader) { l.http = c }
}

// WithS3 sets the S3 client used for s3:// sources.
func WithS3(getter ObjectGetter) Option {
	return func(l *Loader) { l.s3 = getter }
}

// WithRegion sets the AWS region used when the loader builds its own S3 client.
func WithRegion(region string) Option {
	return func(l *Loader) { l.region = region }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		http:     platform.NewHTTPClient(3, 30*time.Second),
		maxBytes: MaxArtifactBytes,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.http.Logger = l.logger
	return l
}

// Load fetches and parses the artifact at location.
func (l *Loader) Load(ctx context.Context, location string) (*Loaded, error) {
	data, err := l.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	model, err := demand.Parse(data, demand.FormatFromPath(pathOf(location)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", location, err)
	}

	sum := sha256.Sum256(data)
	loaded := &Loaded{
		Model:    model,
		Source:   location,
		Checksum: hex.EncodeToString(sum[:]),
		LoadedAt: time.Now().UTC(),
	}

	event := l.logger.Info().
		Str("source", location).
		Str("version", model.Version()).
		Str("transform", string(model.Transform())).
		Int("features", model.Len()).
		Str("sha256", loaded.Checksum[:12])
	event.Msg("Model artifact loaded")

	for _, w := range model.Warnings() {
		l.logger.Warn().Str("version", model.Version()).Msg(w)
	}
	return loaded, nil
}

// Fetch returns the raw artifact bytes.
func (l *Loader) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain paths, including Windows drive letters.
		return l.readFile(location)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return l.readFile(u.Path)
	case "http", "https":
		body, err := l.http.Get(ctx, location, l.maxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch model %s: %w", location, err)
		}
		return body, nil
	case "s3":
		return l.fetchS3(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported model location scheme %q", u.Scheme)
	}
}

func (l *Loader) fetchS3(ctx context.Context, u *url.URL) ([]byte, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 location must be s3://bucket/key, got %s", u.String())
	}

	if l.s3 == nil {
		var opts []func(*config.LoadOptions) error
		if l.region != "" {
			opts = append(opts, config.WithRegion(l.region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		l.s3 = s3.NewFromConfig(cfg)
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := readLimited(out.Body, l.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	defer f.Close()

	data, err := readLimited(f, l.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	return data, nil
}

// readLimited reads r fully, failing once it passes limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("artifact exceeds %d bytes", limit)
	}
	return data, nil
}

// pathOf strips the scheme, host and query so the extension can pick a format.
func pathOf(location string) string {
	if u, err := url.Parse(location); err == nil && len(u.Scheme) > 1 {
		return u.Path
	}
	return location
}
