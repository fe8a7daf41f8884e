// Package azstore holds the credential selection shared by the Azure Storage
// clients.
package azstore

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// Azurite well-known development account.
const (
	DevAccount = "devstoreaccount1"
	DevKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

// IsEmulator reports whether serviceURL points at a local emulator. Real
// storage accounts are only reachable over https.
func IsEmulator(serviceURL string) bool {
	return strings.HasPrefix(serviceURL, "http://")
}

// DefaultCredential returns the ambient Azure identity used against real
// storage accounts.
func DefaultCredential() (azcore.TokenCredential, error) {
	return azidentity.NewDefaultAzureCredential(nil)
}

// HasCode matches a storage service error code. A bare 404 without a body
// counts as any *NotFound code.
func HasCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	if respErr.ErrorCode == code {
		return true
	}
	return respErr.ErrorCode == "" && respErr.StatusCode == http.StatusNotFound && strings.HasSuffix(code, "NotFound")
}
