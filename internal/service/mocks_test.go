package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockOpportunityStore struct{ mock.Mock }

func (m *mockOpportunityStore) Insert(ctx context.Context, runID string, opp domain.ArbitrageOpportunity) error {
	return m.Called(ctx, runID, opp).Error(0)
}

func (m *mockOpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.ArbitrageOpportunity), args.Error(1)
}

func (m *mockOpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	args := m.Called(ctx, limit)
	opps, _ := args.Get(0).([]domain.ArbitrageOpportunity)
	return opps, args.Error(1)
}

func (m *mockOpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	args := m.Called(ctx, before)
	opps, _ := args.Get(0).([]domain.ArbitrageOpportunity)
	return opps, args.Error(1)
}

type mockScanRunStore struct{ mock.Mock }

func (m *mockScanRunStore) Insert(ctx context.Context, run domain.ScanRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockScanRunStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanRun, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]domain.ScanRun)
	return runs, args.Error(1)
}

type mockAuditStore struct{ mock.Mock }

func (m *mockAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	return m.Called(ctx, event, detail).Error(0)
}

func (m *mockAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, opts)
	entries, _ := args.Get(0).([]domain.AuditEntry)
	return entries, args.Error(1)
}

type mockSignalBus struct{ mock.Mock }

func (m *mockSignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.Called(ctx, channel, payload).Error(0)
}

func (m *mockSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	args := m.Called(ctx, channel)
	ch, _ := args.Get(0).(<-chan []byte)
	return ch, args.Error(1)
}

func (m *mockSignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return m.Called(ctx, stream, payload).Error(0)
}

func (m *mockSignalBus) StreamRecent(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	args := m.Called(ctx, stream, count)
	msgs, _ := args.Get(0).([]domain.StreamMessage)
	return msgs, args.Error(1)
}

type mockNameCacheStore struct{ mock.Mock }

func (m *mockNameCacheStore) Load(ctx context.Context) (map[domain.NameKey]string, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).(map[domain.NameKey]string)
	return entries, args.Error(1)
}

func (m *mockNameCacheStore) Save(ctx context.Context, entries map[domain.NameKey]string) error {
	return m.Called(ctx, entries).Error(0)
}

type mockLockManager struct{ mock.Mock }

func (m *mockLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(func())
	return unlock, args.Error(1)
}

type mockBlobWriter struct{ mock.Mock }

func (m *mockBlobWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	body, _ := io.ReadAll(data)
	return m.Called(ctx, path, body, contentType).Error(0)
}

func (m *mockBlobWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	body, _ := io.ReadAll(data)
	return m.Called(ctx, path, body, partSize).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	return m.Called(ctx, opp).Error(0)
}

func (m *mockNotifier) NotifyScanFailure(ctx context.Context, res domain.ScanResult) error {
	return m.Called(ctx, res).Error(0)
}
