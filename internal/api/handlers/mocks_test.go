package handlers_test

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"github.com/emmystark/dwello/internal/models"
	"github.com/emmystark/dwello/internal/services"
	"github.com/emmystark/dwello/internal/storage"
	"github.com/emmystark/dwello/internal/utils"
)

// --- Mocks ---

// MockPropertyService
type MockPropertyService struct {
	mock.Mock
}

func (m *MockPropertyService) Create(ctx context.Context, input services.CreatePropertyInput) (*models.Property, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) Get(ctx context.Context, id utils.SixID) (*models.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) Find(ctx context.Context, id utils.SixID) (*models.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) List(ctx context.Context, page, pageSize int) (*models.PropertyPage, error) {
	args := m.Called(ctx, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PropertyPage), args.Error(1)
}

func (m *MockPropertyService) Update(ctx context.Context, id utils.SixID, updates map[string]interface{}, newImages []models.ImageRef) (*models.Property, error) {
	args := m.Called(ctx, id, updates, newImages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) Remove(ctx context.Context, id utils.SixID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPropertyService) Search(ctx context.Context, filter models.SearchFilter) ([]models.Property, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Property), args.Error(1)
}

func (m *MockPropertyService) ListByCaretaker(ctx context.Context, address string) ([]models.Property, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Property), args.Error(1)
}

func (m *MockPropertyService) FindClaim(ctx context.Context, blobID string) (*models.BlobClaim, error) {
	args := m.Called(ctx, blobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BlobClaim), args.Error(1)
}

func (m *MockPropertyService) RebuildBlobIndex(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockAccessService
type MockAccessService struct {
	mock.Mock
}

func (m *MockAccessService) CheckAccess(ctx context.Context, address, listingID, blobID string) models.AccessDecision {
	args := m.Called(ctx, address, listingID, blobID)
	return args.Get(0).(models.AccessDecision)
}

func (m *MockAccessService) PaymentStatus(ctx context.Context, address, listingID string) (*models.PaymentStatus, error) {
	args := m.Called(ctx, address, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentStatus), args.Error(1)
}

func (m *MockAccessService) GenerateAccessToken(address, listingID string) (string, error) {
	args := m.Called(address, listingID)
	return args.String(0), args.Error(1)
}

func (m *MockAccessService) ValidateAccessToken(tokenString, address, listingID string) bool {
	args := m.Called(tokenString, address, listingID)
	return args.Bool(0)
}

// MockLedgerClient
type MockLedgerClient struct {
	mock.Mock
}

func (m *MockLedgerClient) HasAccessPass(ctx context.Context, address, listingID string) (*models.PaymentStatus, error) {
	args := m.Called(ctx, address, listingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentStatus), args.Error(1)
}

func (m *MockLedgerClient) IsCaretaker(ctx context.Context, address string) (bool, error) {
	args := m.Called(ctx, address)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerClient) ListCaretakerListings(ctx context.Context, address string) ([]map[string]interface{}, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]interface{}), args.Error(1)
}

// MockBlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Upload(ctx context.Context, data []byte, filename, contentType string) (*storage.UploadResult, error) {
	args := m.Called(ctx, data, filename, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.UploadResult), args.Error(1)
}

func (m *MockBlobStore) Validate(ctx context.Context, blobID string) models.BlobStatus {
	args := m.Called(ctx, blobID)
	return args.Get(0).(models.BlobStatus)
}

func (m *MockBlobStore) Retrieve(ctx context.Context, blobID string) (*storage.Object, error) {
	args := m.Called(ctx, blobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Object), args.Error(1)
}

// MockAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(task, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}
