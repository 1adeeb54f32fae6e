package testutil

import (
	"context"

	"github.com/arthur-debert/dotapply/pkg/types"
	"github.com/stretchr/testify/mock"
)

// MockPackageManager is a testify mock of the package manager capability
type MockPackageManager struct {
	mock.Mock
}

// ListInstalled returns the mocked installed set
func (m *MockPackageManager) ListInstalled(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if installed := args.Get(0); installed != nil {
		return installed.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

// Install records a batched install call
func (m *MockPackageManager) Install(ctx context.Context, names []string, kind types.PackageKind) error {
	args := m.Called(ctx, names, kind)
	return args.Error(0)
}
