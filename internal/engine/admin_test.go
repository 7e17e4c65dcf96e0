package engine

import (
	"context"
	"encoding/json"
	"testing"

	"bandpay/internal/event"
	"bandpay/internal/transaction"
	"bandpay/internal/wallet"
	"bandpay/internal/wristband"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResync_MovesCounterForward(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	env.dbmock.ExpectBegin()
	env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 3).Return(testBand(9), nil)
	env.bands.On("SetCounter", mock.Anything, mock.Anything, 3, uint32(14)).Return(nil)
	env.txs.On("Insert", mock.Anything, mock.Anything, mock.MatchedBy(func(tr *transaction.Transaction) bool {
		return tr.Type == transaction.TypeAdminResync && tr.Status == transaction.StatusApproved
	})).Return(nil, nil)
	env.dbmock.ExpectCommit()

	got, err := env.svc.Resync(context.Background(), ResyncRequest{
		EventID: testEventID, WristbandID: 3, TargetCtr: 14, OperatorID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, transaction.TypeAdminResync, got.Type)
	env.bands.AssertExpectations(t)
}

func TestResync_TagBehindRequiresReplace(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	env.dbmock.ExpectBegin()
	env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 3).Return(testBand(9), nil)
	env.wallets.On("GetByWristband", mock.Anything, testEventID, 3).Return(testWallet(8300), nil)
	env.dbmock.ExpectRollback()

	_, err := env.svc.Resync(context.Background(), ResyncRequest{
		EventID: testEventID, WristbandID: 3, TargetCtr: 5, OperatorID: 1,
	})

	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodeReplaceRequired, e.Code)
	assert.EqualValues(t, 9, e.Data["server_ctr"])
	assert.EqualValues(t, 5, e.Data["tag_ctr"])
	assert.EqualValues(t, 8300, e.Data["balance_cents"])
	env.bands.AssertNotCalled(t, "SetCounter", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInvalidate_WritesAuditRowEveryTime(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	alreadyDone := testBand(9)
	alreadyDone.Status = wristband.StatusInvalidated

	env.dbmock.ExpectBegin()
	env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 3).Return(alreadyDone, nil)
	env.txs.On("Insert", mock.Anything, mock.Anything, mock.MatchedBy(func(tr *transaction.Transaction) bool {
		return tr.Type == transaction.TypeAdminInvalidate
	})).Return(nil, nil)
	env.dbmock.ExpectCommit()

	_, err := env.svc.Invalidate(context.Background(), InvalidateRequest{
		EventID: testEventID, WristbandID: 3, Reason: "lost", OperatorID: 1,
	})
	require.NoError(t, err)
	// Already invalidated: status untouched, audit row still written.
	env.bands.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInvalidate_SetsStatus(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	env.dbmock.ExpectBegin()
	env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 3).Return(testBand(9), nil)
	env.bands.On("SetStatus", mock.Anything, mock.Anything, 3, wristband.StatusInvalidated).Return(nil)
	env.txs.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	env.dbmock.ExpectCommit()

	_, err := env.svc.Invalidate(context.Background(), InvalidateRequest{
		EventID: testEventID, WristbandID: 3, Reason: "stolen", OperatorID: 1,
	})
	require.NoError(t, err)
	env.bands.AssertExpectations(t)
}

func TestReplace_TransfersFullBalance(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	newBand := &wristband.Wristband{
		ID: 17, EventID: testEventID,
		UID: "04ffeeddccbbaa", TagID: "aabbccddeeff00112233445566778899",
		Status: wristband.StatusActive,
	}
	newWallet := &wallet.Wallet{ID: 21, EventID: testEventID, WristbandID: 17, BalanceCents: 0}

	newID := 17
	env.dbmock.ExpectBegin()
	env.events.On("GetByIDTx", mock.Anything, mock.Anything, testEventID).Return(testEvent(), nil)
	env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 3).Return(testBand(9), nil)
	env.wallets.On("GetByWristbandForUpdate", mock.Anything, mock.Anything, testEventID, 3).
		Return(testWallet(8300), nil)
	env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 17).Return(newBand, nil)
	env.wallets.On("GetByWristbandForUpdate", mock.Anything, mock.Anything, testEventID, 17).
		Return(newWallet, nil)
	env.wallets.On("SetBalance", mock.Anything, mock.Anything, 21, int64(8300)).Return(nil)
	env.wallets.On("SetBalance", mock.Anything, mock.Anything, 5, int64(0)).Return(nil)
	env.bands.On("SetStatus", mock.Anything, mock.Anything, 3, wristband.StatusInvalidated).Return(nil)
	env.txs.On("Insert", mock.Anything, mock.Anything, mock.MatchedBy(func(tr *transaction.Transaction) bool {
		return tr.Type == transaction.TypeAdminReplace && tr.AmountCents == 8300
	})).Return(nil, nil)
	env.dbmock.ExpectCommit()

	got, err := env.svc.Replace(context.Background(), ReplaceRequest{
		EventID:        testEventID,
		OldWristbandID: 3,
		NewWristbandID: &newID,
		Reason:         "damaged tag",
		OperatorID:     1,
	})
	require.NoError(t, err)

	res := transaction.ReplaceResult{}
	require.NoError(t, json.Unmarshal([]byte(got.ResultJSON), &res))
	assert.Equal(t, 3, res.FromWristbandID)
	assert.Equal(t, 17, res.ToWristbandID)
	assert.EqualValues(t, 8300, res.TransferredCents)
	env.wallets.AssertExpectations(t)
}

func TestReplace_ProvisionsUnknownUID(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	freshBand := &wristband.Wristband{
		ID: 18, EventID: testEventID, UID: "04deadbeef0102",
		TagID: "99887766554433221100ffeeddccbbaa", Status: wristband.StatusActive,
	}
	newUID := "04deadbeef0102"

	env.dbmock.ExpectBegin()
	env.events.On("GetByIDTx", mock.Anything, mock.Anything, testEventID).Return(testEvent(), nil)
	env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 3).Return(testBand(9), nil)
	env.wallets.On("GetByWristbandForUpdate", mock.Anything, mock.Anything, testEventID, 3).
		Return(testWallet(100), nil)
	env.bands.On("GetByUIDForUpdate", mock.Anything, mock.Anything, testEventID, newUID).
		Return(nil, wristband.ErrWristbandNotFound)
	env.bands.On("CreateTx", mock.Anything, mock.Anything, testEventID, newUID).Return(freshBand, nil)
	env.wallets.On("GetByWristbandForUpdate", mock.Anything, mock.Anything, testEventID, 18).
		Return(nil, wallet.ErrWalletNotFound)
	env.wallets.On("CreateTx", mock.Anything, mock.Anything, testEventID, 18).
		Return(&wallet.Wallet{ID: 22, EventID: testEventID, WristbandID: 18}, nil)
	env.wallets.On("SetBalance", mock.Anything, mock.Anything, 22, int64(100)).Return(nil)
	env.wallets.On("SetBalance", mock.Anything, mock.Anything, 5, int64(0)).Return(nil)
	env.bands.On("SetStatus", mock.Anything, mock.Anything, 3, wristband.StatusInvalidated).Return(nil)
	env.txs.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	env.dbmock.ExpectCommit()

	_, err := env.svc.Replace(context.Background(), ReplaceRequest{
		EventID:        testEventID,
		OldWristbandID: 3,
		NewTagUID:      &newUID,
		OperatorID:     1,
	})
	require.NoError(t, err)
	env.bands.AssertExpectations(t)
}

func TestReplace_ClosedEvent(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	closed := testEvent()
	closed.Status = event.StatusClosed

	newID := 17
	env.dbmock.ExpectBegin()
	env.events.On("GetByIDTx", mock.Anything, mock.Anything, testEventID).Return(closed, nil)
	env.dbmock.ExpectRollback()

	_, err := env.svc.Replace(context.Background(), ReplaceRequest{
		EventID: testEventID, OldWristbandID: 3, NewWristbandID: &newID, OperatorID: 1,
	})
	assert.Equal(t, CodeEventClosed, CodeOf(err))
	env.wallets.AssertNotCalled(t, "SetBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReplace_RejectsSelfAndAmbiguousTarget(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	t.Run("no target", func(t *testing.T) {
		_, err := env.svc.Replace(context.Background(), ReplaceRequest{
			EventID: testEventID, OldWristbandID: 3, OperatorID: 1,
		})
		assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	})

	t.Run("both targets", func(t *testing.T) {
		id := 17
		uid := "04deadbeef0102"
		_, err := env.svc.Replace(context.Background(), ReplaceRequest{
			EventID: testEventID, OldWristbandID: 3,
			NewWristbandID: &id, NewTagUID: &uid, OperatorID: 1,
		})
		assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	})

	t.Run("self replace", func(t *testing.T) {
		id := 3
		env.dbmock.ExpectBegin()
		env.events.On("GetByIDTx", mock.Anything, mock.Anything, testEventID).Return(testEvent(), nil)
		env.bands.On("GetByIDForUpdate", mock.Anything, mock.Anything, 3).Return(testBand(9), nil)
		env.wallets.On("GetByWristbandForUpdate", mock.Anything, mock.Anything, testEventID, 3).
			Return(testWallet(100), nil)
		env.dbmock.ExpectRollback()

		_, err := env.svc.Replace(context.Background(), ReplaceRequest{
			EventID: testEventID, OldWristbandID: 3, NewWristbandID: &id, OperatorID: 1,
		})
		assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	})
}

func TestStartReplaceSession(t *testing.T) {
	env := newTestEnv(t)
	defer env.closeDB()

	env.bands.On("GetByID", mock.Anything, 3).Return(testBand(9), nil)
	env.wallets.On("GetByWristband", mock.Anything, testEventID, 3).Return(testWallet(8300), nil)
	env.bands.On("CreateReplaceSession", mock.Anything, mock.MatchedBy(func(s *wristband.ReplaceSession) bool {
		return s.OldWristbandID == 3 && s.BalanceCents == 8300 && s.ExpiresAt.After(testNow)
	})).Return(&wristband.ReplaceSession{ID: 1, OldWristbandID: 3, BalanceCents: 8300}, nil)

	sess, err := env.svc.StartReplaceSession(context.Background(), StartReplaceRequest{
		EventID: testEventID, WristbandID: 3, Reason: "torn strap", OperatorID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.ID)
	env.bands.AssertExpectations(t)
}
