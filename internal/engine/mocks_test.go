package engine

import (
	"context"
	"time"

	"bandpay/internal/event"
	"bandpay/internal/notify"
	"bandpay/internal/product"
	"bandpay/internal/transaction"
	"bandpay/internal/wallet"
	"bandpay/internal/wristband"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
)

// MockEventRepo is a mock implementation of event.Repository
type MockEventRepo struct {
	mock.Mock
}

func (m *MockEventRepo) Create(ctx context.Context, name string) (*event.Event, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepo) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*event.Event, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.Event), args.Error(1)
}

func (m *MockEventRepo) List(ctx context.Context) ([]event.Event, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]event.Event), args.Error(1)
}

func (m *MockEventRepo) Close(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockWristbandRepo is a mock implementation of wristband.Repository
type MockWristbandRepo struct {
	mock.Mock
}

func (m *MockWristbandRepo) Create(ctx context.Context, eventID uuid.UUID, uid string) (*wristband.Wristband, error) {
	args := m.Called(ctx, eventID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.Wristband), args.Error(1)
}

func (m *MockWristbandRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, uid string) (*wristband.Wristband, error) {
	args := m.Called(ctx, tx, eventID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.Wristband), args.Error(1)
}

func (m *MockWristbandRepo) GetByID(ctx context.Context, id int) (*wristband.Wristband, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.Wristband), args.Error(1)
}

func (m *MockWristbandRepo) GetByUID(ctx context.Context, eventID uuid.UUID, uid string) (*wristband.Wristband, error) {
	args := m.Called(ctx, eventID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.Wristband), args.Error(1)
}

func (m *MockWristbandRepo) GetByUIDForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, uid string) (*wristband.Wristband, error) {
	args := m.Called(ctx, tx, eventID, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.Wristband), args.Error(1)
}

func (m *MockWristbandRepo) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id int) (*wristband.Wristband, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.Wristband), args.Error(1)
}

func (m *MockWristbandRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]wristband.Wristband, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wristband.Wristband), args.Error(1)
}

func (m *MockWristbandRepo) AdoptCounter(ctx context.Context, tx *sqlx.Tx, id int, newCtr uint32) error {
	args := m.Called(ctx, tx, id, newCtr)
	return args.Error(0)
}

func (m *MockWristbandRepo) SetCounter(ctx context.Context, tx *sqlx.Tx, id int, ctr uint32) error {
	args := m.Called(ctx, tx, id, ctr)
	return args.Error(0)
}

func (m *MockWristbandRepo) SetStatus(ctx context.Context, tx *sqlx.Tx, id int, status string) error {
	args := m.Called(ctx, tx, id, status)
	return args.Error(0)
}

func (m *MockWristbandRepo) CreateReplaceSession(ctx context.Context, s *wristband.ReplaceSession) (*wristband.ReplaceSession, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.ReplaceSession), args.Error(1)
}

func (m *MockWristbandRepo) GetReplaceSession(ctx context.Context, id int) (*wristband.ReplaceSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wristband.ReplaceSession), args.Error(1)
}

func (m *MockWristbandRepo) CompleteReplaceSession(ctx context.Context, tx *sqlx.Tx, id, newWristbandID int, newTagUID string) error {
	args := m.Called(ctx, tx, id, newWristbandID, newTagUID)
	return args.Error(0)
}

func (m *MockWristbandRepo) ExpireStaleReplaceSessions(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockWalletRepo is a mock implementation of wallet.Repository
type MockWalletRepo struct {
	mock.Mock
}

func (m *MockWalletRepo) Create(ctx context.Context, eventID uuid.UUID, wristbandID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, eventID, wristbandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, wristbandID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, tx, eventID, wristbandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) GetByWristband(ctx context.Context, eventID uuid.UUID, wristbandID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, eventID, wristbandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) GetByWristbandForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, wristbandID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, tx, eventID, wristbandID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) SetBalance(ctx context.Context, tx *sqlx.Tx, id int, balanceCents int64) error {
	args := m.Called(ctx, tx, id, balanceCents)
	return args.Error(0)
}

// MockTxRepo is a mock implementation of transaction.Repository
type MockTxRepo struct {
	mock.Mock
}

func (m *MockTxRepo) GetByEventAndTxID(ctx context.Context, eventID uuid.UUID, txID string) (*transaction.Transaction, error) {
	args := m.Called(ctx, eventID, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTxRepo) GetByEventAndTxIDForUpdate(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, txID string) (*transaction.Transaction, error) {
	args := m.Called(ctx, tx, eventID, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

// Insert echoes its input back when the expectation returns nil, so
// tests can assert on the row the service built.
func (m *MockTxRepo) Insert(ctx context.Context, tx *sqlx.Tx, t *transaction.Transaction) (*transaction.Transaction, error) {
	args := m.Called(ctx, tx, t)
	if args.Error(1) != nil {
		return nil, args.Error(1)
	}
	if args.Get(0) == nil {
		return t, nil
	}
	return args.Get(0).(*transaction.Transaction), nil
}

func (m *MockTxRepo) InsertIncident(ctx context.Context, t *transaction.Transaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockTxRepo) MarkTerminal(ctx context.Context, tx *sqlx.Tx, id int64, status, resultJSON string) error {
	args := m.Called(ctx, tx, id, status, resultJSON)
	return args.Error(0)
}

func (m *MockTxRepo) CountItems(ctx context.Context, tx *sqlx.Tx, transactionID int64) (int, error) {
	args := m.Called(ctx, tx, transactionID)
	return args.Int(0), args.Error(1)
}

func (m *MockTxRepo) InsertItems(ctx context.Context, tx *sqlx.Tx, transactionID int64, items []transaction.Item) error {
	args := m.Called(ctx, tx, transactionID, items)
	return args.Error(0)
}

func (m *MockTxRepo) GetItems(ctx context.Context, transactionID int64) ([]transaction.Item, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.Item), args.Error(1)
}

func (m *MockTxRepo) HasRefundFor(ctx context.Context, tx *sqlx.Tx, eventID uuid.UUID, txID string) (bool, error) {
	args := m.Called(ctx, tx, eventID, txID)
	return args.Bool(0), args.Error(1)
}

func (m *MockTxRepo) ExpirePending(ctx context.Context, now time.Time, resultJSON string) (int64, error) {
	args := m.Called(ctx, now, resultJSON)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTxRepo) ListByEvent(ctx context.Context, eventID uuid.UUID, limit, offset int) ([]transaction.Transaction, error) {
	args := m.Called(ctx, eventID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.Transaction), args.Error(1)
}

// MockProductRepo is a mock implementation of product.Repository
type MockProductRepo struct {
	mock.Mock
}

func (m *MockProductRepo) Create(ctx context.Context, eventID uuid.UUID, boothID *int, name string, priceCents int64) (*product.Product, error) {
	args := m.Called(ctx, eventID, boothID, name, priceCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*product.Product), args.Error(1)
}

func (m *MockProductRepo) GetByIDs(ctx context.Context, eventID uuid.UUID, ids []int) ([]product.Product, error) {
	args := m.Called(ctx, eventID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.Product), args.Error(1)
}

func (m *MockProductRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]product.Product, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]product.Product), args.Error(1)
}

func (m *MockProductRepo) SetActive(ctx context.Context, id int, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

// MockNotifier is a mock implementation of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Push(ctx context.Context, inc notify.Incident) {
	m.Called(ctx, inc)
}
