package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/jobrunner/gpkgkit/internal/ports/output"
)

// AzureStorage keeps published GeoPackages as block blobs in one container.
type AzureStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// NewAzureStorage creates a new Azure Blob Storage adapter. A connection
// string takes precedence over the account name and key.
func NewAzureStorage(cfg AzureConfig) (*AzureStorage, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure container is required")
	}

	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return &AzureStorage{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

func newAzureClient(cfg AzureConfig) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}
	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, err
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
}

// List pages through the container and keeps the .gpkg blobs.
func (s *AzureStorage) List(ctx context.Context) ([]output.RemotePackage, error) {
	var packages []output.RemotePackage

	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: &s.prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list %s: %w", s.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if pkg, ok := s.remotePackage(item); ok {
				packages = append(packages, pkg)
			}
		}
	}

	return packages, nil
}

func (s *AzureStorage) remotePackage(item *container.BlobItem) (output.RemotePackage, bool) {
	if item.Name == nil || !IsGeoPackage(*item.Name) {
		return output.RemotePackage{}, false
	}

	pkg := output.RemotePackage{Key: relativeKey(s.prefix, *item.Name)}
	if props := item.Properties; props != nil {
		if props.ContentLength != nil {
			pkg.Size = *props.ContentLength
		}
		if props.LastModified != nil {
			pkg.ModTime = *props.LastModified
		}
		if props.ETag != nil {
			pkg.ETag = string(*props.ETag)
		}
	}
	return pkg, true
}

// Download streams the blob into dest.
func (s *AzureStorage) Download(ctx context.Context, key string, dest string) error {
	resp, err := s.client.DownloadStream(ctx, s.container, s.fullKey(key), nil)
	if err != nil {
		return fmt.Errorf("azure download %s: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return writeAtomic(ctx, dest, resp.Body)
}

// Upload publishes src as a block blob carrying the GeoPackage media type.
func (s *AzureStorage) Upload(ctx context.Context, src string, key string) error {
	f, err := os.Open(src) //#nosec G304 -- src is a caller supplied local path
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	ct := contentType
	_, err = s.client.UploadFile(ctx, s.container, s.fullKey(key), f, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", key, err)
	}
	return nil
}

// Exists reads the blob properties of key.
func (s *AzureStorage) Exists(ctx context.Context, key string) (bool, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(s.fullKey(key))
	_, err := blobClient.GetProperties(ctx, nil)
	switch {
	case err == nil:
		return true, nil
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return false, nil
	}
	return false, fmt.Errorf("azure properties %s: %w", key, err)
}

func (s *AzureStorage) fullKey(key string) string {
	return joinKey(s.prefix, key)
}
