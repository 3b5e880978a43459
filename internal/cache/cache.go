// Package cache implements the content-addressed object cache backed by a
// MinIO (S3-compatible) bucket. Raw page bytes are stored under
// date-prefixed keys with a metadata sidecar; writes are full-object
// replacements so concurrent writers producing the same key are safe.
package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"newsroom/internal/logger"
)

// LockoutKey is the well-known object key for the login lockout marker.
const LockoutKey = "locks/login-lockout.json"

// ErrNotFound is returned when a cache object does not exist.
var ErrNotFound = errors.New("cache: object not found")

var editionDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// sharedHTTPClient pools connections across all cache operations.
var sharedHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Cache is an object cache over one S3-compatible bucket.
type Cache struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// Object is a cached blob plus its metadata sidecar.
type Object struct {
	Key      string
	Body     []byte
	Metadata map[string]string
}

// ResolveEndpoint normalizes a MinIO endpoint into a full URL, applying
// in-cluster defaults: Kubernetes service DNS and localhost/.lan hosts are
// HTTP (port 80 when omitted); everything else defaults to HTTPS on 9000.
func ResolveEndpoint(endpoint string) string {
	ep := strings.TrimSpace(endpoint)
	var secure *bool
	if strings.HasPrefix(ep, "http://") {
		ep = strings.TrimPrefix(ep, "http://")
		f := false
		secure = &f
	} else if strings.HasPrefix(ep, "https://") {
		ep = strings.TrimPrefix(ep, "https://")
		tr := true
		secure = &tr
	}

	host := ep
	port := 0
	if i := strings.LastIndex(ep, ":"); i != -1 {
		if p, err := strconv.Atoi(ep[i+1:]); err == nil {
			host, port = ep[:i], p
		}
	}

	isK8sSvc := strings.HasSuffix(host, ".svc") || strings.HasSuffix(host, ".svc.cluster.local")
	isLocal := strings.HasPrefix(host, "localhost") || strings.HasSuffix(host, ".lan")

	useTLS := !(isK8sSvc || isLocal)
	if secure != nil {
		useTLS = *secure
	}
	if port == 0 {
		if useTLS {
			port = 9000
		} else {
			port = 80
		}
	}

	scheme := "https"
	if !useTLS {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// New builds a cache client for the given MinIO endpoint and ensures the
// bucket exists.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string) (*Cache, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("cache: MINIO_ENDPOINT not configured")
	}
	resolved := ResolveEndpoint(endpoint)

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               resolved,
					SigningRegion:     region,
					HostnameImmutable: true,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to load client config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.HTTPClient = sharedHTTPClient
	})

	c := &Cache{client: client, bucket: bucket, log: logger.With("cache")}
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}
	c.log.Info().Str("endpoint", resolved).Str("bucket", bucket).Msg("object cache ready")
	return c, nil
}

func (c *Cache) ensureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	if _, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("cache: failed to create bucket %s: %w", c.bucket, err)
	}
	c.log.Info().Str("bucket", c.bucket).Msg("created bucket")
	return nil
}

// Slugify reduces free text to a lowercase dash-separated slug for cache
// keys; empty input yields "default".
func Slugify(text string) string {
	slug := regexp.MustCompile(`[^a-zA-Z0-9]+`).ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "default"
	}
	return slug
}

// FileExtension picks the blob extension from the URL path first and the
// declared format second; everything that is not a PDF is stored as HTML.
func FileExtension(pageURL, format string) string {
	if u, err := url.Parse(pageURL); err == nil {
		if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			return ".pdf"
		}
	}
	if format == "pdf" {
		return ".pdf"
	}
	return ".html"
}

// ObjectKey builds the canonical content-addressed key for an edition page:
// YYYY-MM-DD/<publication_slug>_page_NNN_<md5(url)[:8]>.<ext>
func ObjectKey(editionDate time.Time, publication, pageURL string, pageNumber int, format string) string {
	urlHash := md5.Sum([]byte(pageURL))
	return fmt.Sprintf("%s/%s_page_%03d_%s%s",
		editionDate.Format("2006-01-02"),
		Slugify(publication),
		pageNumber,
		hex.EncodeToString(urlHash[:])[:8],
		FileExtension(pageURL, format),
	)
}

// ContentHash computes the sha256 recorded in the metadata sidecar.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Put stores a blob with its metadata sidecar. Same-key writes replace the
// whole object.
func (c *Cache) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(body),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("cache: failed to put %s: %w", key, err)
	}
	c.log.Debug().Str("key", key).Int("bytes", len(body)).Msg("cached object")
	return nil
}

// PutPage stores page bytes under the canonical key with the standard
// sidecar fields and returns the key.
func (c *Cache) PutPage(ctx context.Context, editionDate time.Time, publication string, pageURL string, pageNumber int, format, section, title string, body []byte) (string, error) {
	key := ObjectKey(editionDate, publication, pageURL, pageNumber, format)
	metadata := map[string]string{
		"url":          pageURL,
		"page_number":  strconv.Itoa(pageNumber),
		"format":       format,
		"content_hash": ContentHash(body),
		"cached_at":    time.Now().UTC().Format(time.RFC3339),
	}
	if publication != "" {
		metadata["publication"] = publication
	}
	if section != "" {
		metadata["section"] = section
	}
	if title != "" {
		metadata["title"] = title
	}
	if err := c.Put(ctx, key, body, metadata); err != nil {
		return "", err
	}
	return key, nil
}

// Get retrieves a blob and its metadata. ErrNotFound when the key does not
// exist.
func (c *Cache) Get(ctx context.Context, key string) (*Object, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache: failed to get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to read %s: %w", key, err)
	}
	return &Object{Key: key, Body: body, Metadata: out.Metadata}, nil
}

// Exists reports whether a key is present.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

// Stat returns the metadata sidecar for a key without fetching the body.
func (c *Cache) Stat(ctx context.Context, key string) (map[string]string, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}
	return out.Metadata, nil
}

// Delete removes a key; deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("cache: failed to delete %s: %w", key, err)
	}
	return nil
}

// List returns all keys under a prefix.
func (c *Cache) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("cache: failed to list prefix %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, *obj.Key)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

// ListEditionDates returns the sorted set of edition dates that have at
// least one cached blob.
func (c *Cache) ListEditionDates(ctx context.Context) ([]string, error) {
	keys, err := c.List(ctx, "")
	if err != nil {
		return nil, err
	}
	set := map[string]bool{}
	for _, k := range keys {
		if i := strings.Index(k, "/"); i != -1 {
			datePart := k[:i]
			if editionDateRe.MatchString(datePart) {
				set[datePart] = true
			}
		}
	}
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

// CleanupOlderThan deletes edition blobs whose date prefix is older than
// the given number of days. Returns the number of objects removed.
func (c *Cache) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	keys, err := c.List(ctx, "")
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, k := range keys {
		i := strings.Index(k, "/")
		if i == -1 {
			continue
		}
		objDate, err := time.Parse("2006-01-02", k[:i])
		if err != nil {
			continue // non-edition keys (locks/, debug/) are never swept
		}
		if objDate.Before(cutoff) {
			if err := c.Delete(ctx, k); err != nil {
				c.log.Warn().Err(err).Str("key", k).Msg("sweep delete failed")
				continue
			}
			deleted++
		}
	}
	c.log.Info().Int("deleted", deleted).Int("days", days).Msg("cache sweep complete")
	return deleted, nil
}

// PutText stores a small text object (lockout marker, debug captures).
func (c *Cache) PutText(ctx context.Context, key, text string) error {
	return c.Put(ctx, key, []byte(text), nil)
}

// GetText retrieves a small text object; empty string and ErrNotFound when
// absent.
func (c *Cache) GetText(ctx context.Context, key string) (string, error) {
	obj, err := c.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(obj.Body), nil
}

// DebugKey builds a key for best-effort debug captures:
// debug/login/<label>/<UTC-ts>.<ext>
func DebugKey(label, ext string) string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	return path.Join("debug/login", label, ts+"."+strings.TrimPrefix(ext, "."))
}
