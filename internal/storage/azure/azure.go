// Package azure implements the Azure Blob Storage archive backend. Objects are
// written as block blobs using shared key authentication, with the batch SHA256
// stored in blob metadata.
package azure

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/storage"
)

func init() {
	// Register Azure archive backend
	storage.Register("azure", func(settings *models.ArchiveSettings) (storage.Backend, error) {
		return New(settings)
	})
}

// AzureBackend implements the Backend interface for Azure Blob Storage
type AzureBackend struct {
	client        *azblob.Client
	containerName string
}

// New creates a new Azure Blob Storage archive backend
func New(settings *models.ArchiveSettings) (*AzureBackend, error) {
	if settings.AzureAccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if settings.AzureAccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if settings.AzureContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(settings.AzureAccountName, settings.AzureAccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", settings.AzureAccountName)

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureBackend{
		client:        client,
		containerName: settings.AzureContainerName,
	}, nil
}

// Store writes an object to Azure Blob Storage
func (b *AzureBackend) Store(ctx context.Context, key string, data []byte) error {
	hasher := sha256.New()
	hasher.Write(data)
	checksum := hex.EncodeToString(hasher.Sum(nil))

	blobClient := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlockBlobClient(key)

	_, err := blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), &blockblob.UploadOptions{
		// Store SHA256 in metadata so batches can be verified without download
		Metadata: map[string]*string{
			"sha256": &checksum,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	return nil
}

// Retrieve reads an object from Azure Blob Storage
func (b *AzureBackend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	blobClient := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlobClient(key)

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download from Azure Blob: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read Azure Blob: %w", err)
	}

	return data, nil
}

// Delete removes an object from Azure Blob Storage
func (b *AzureBackend) Delete(ctx context.Context, key string) error {
	blobClient := b.client.ServiceClient().NewContainerClient(b.containerName).NewBlobClient(key)

	if _, err := blobClient.Delete(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete from Azure Blob: %w", err)
	}

	return nil
}

// List returns the keys of stored objects beginning with prefix
func (b *AzureBackend) List(ctx context.Context, prefix string) ([]string, error) {
	containerClient := b.client.ServiceClient().NewContainerClient(b.containerName)

	var keys []string
	pager := containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}

	return keys, nil
}
