package gcs

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-sphere/internal/domain"
	"google.golang.org/api/option"
)

type Client struct {
	storageClient *storage.Client
	BucketName    string
	publicBase    string
}

// NewClient builds a storage client for bucketName. With an empty saKeyPath
// the default application credentials are used. publicBase overrides the
// https://storage.googleapis.com/{bucket} prefix of public URLs.
func NewClient(ctx context.Context, bucketName, saKeyPath, publicBase string) (*Client, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create GCS storage client")
	}
	return &Client{
		storageClient: storageClient,
		BucketName:    bucketName,
		publicBase:    publicBaseURL(publicBase, bucketName),
	}, nil
}

func (c *Client) Close() error {
	return c.storageClient.Close()
}

// SignUpload returns a V4 signed PUT URL for key. The client must send the
// same Content-Type header when uploading.
func (c *Client) SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*domain.SignedUpload, error) {
	expires := time.Now().Add(ttl).UTC()
	signed, err := c.storageClient.Bucket(c.BucketName).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      http.MethodPut,
		ContentType: contentType,
		Expires:     expires,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "sign upload for %s", key)
	}
	return &domain.SignedUpload{
		UploadURL: signed,
		Method:    http.MethodPut,
		Headers:   map[string]string{"Content-Type": contentType},
		ObjectKey: key,
		PublicURL: c.PublicURL(key),
		ExpiresAt: expires,
	}, nil
}

// Delete removes the object at key. A missing object is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	err := c.storageClient.Bucket(c.BucketName).Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "delete object %s", key)
}

func (c *Client) PublicURL(key string) string {
	return objectURL(c.publicBase, key)
}

func publicBaseURL(base, bucket string) string {
	if base == "" {
		return "https://storage.googleapis.com/" + bucket
	}
	return strings.TrimRight(base, "/")
}

func objectURL(base, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(parts, "/")
}
