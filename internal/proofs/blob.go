package proofs

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/punchamoorthee/classfund/internal/azstore"
)

// Blob keeps proofs in one Azure Blob Storage container.
type Blob struct {
	client    *azblob.Client
	container string
}

// NewBlob connects to serviceURL and makes sure the container exists.
func NewBlob(ctx context.Context, serviceURL, container string) (*Blob, error) {
	var client *azblob.Client
	if azstore.IsEmulator(serviceURL) {
		cred, err := azblob.NewSharedKeyCredential(azstore.DevAccount, azstore.DevKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob client: %w", err)
		}
	} else {
		cred, err := azstore.DefaultCredential()
		if err != nil {
			return nil, fmt.Errorf("failed to create default azure credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create blob client: %w", err)
		}
	}

	if _, err := client.CreateContainer(ctx, container, nil); err != nil && !azstore.HasCode(err, "ContainerAlreadyExists") {
		return nil, fmt.Errorf("create container %s: %w", container, err)
	}
	return &Blob{client: client, container: container}, nil
}

func (b *Blob) Put(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	name := objectName(filename, contentType)
	if _, err := b.client.UploadBuffer(ctx, b.container, name, data, nil); err != nil {
		return "", fmt.Errorf("upload proof: %w", err)
	}
	return name, nil
}

func (b *Blob) Get(ctx context.Context, ref string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, ref, nil)
	if err != nil {
		if azstore.HasCode(err, "BlobNotFound") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download proof: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read proof: %w", err)
	}
	return data, nil
}
