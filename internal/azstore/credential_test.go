package azstore

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
)

func TestIsEmulator(t *testing.T) {
	assert.True(t, IsEmulator("http://127.0.0.1:10000/devstoreaccount1"))
	assert.False(t, IsEmulator("https://fund.blob.core.windows.net/"))
}

func TestHasCode(t *testing.T) {
	exists := fmt.Errorf("create: %w", &azcore.ResponseError{ErrorCode: "ContainerAlreadyExists", StatusCode: http.StatusConflict})
	assert.True(t, HasCode(exists, "ContainerAlreadyExists"))
	assert.False(t, HasCode(exists, "BlobNotFound"))

	bare := &azcore.ResponseError{StatusCode: http.StatusNotFound}
	assert.True(t, HasCode(bare, "BlobNotFound"))
	assert.False(t, HasCode(bare, "QueueAlreadyExists"))

	assert.False(t, HasCode(errors.New("dial tcp: refused"), "BlobNotFound"))
}
