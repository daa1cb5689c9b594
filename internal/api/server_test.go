package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"filippo.io/edwards25519"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-copytrade-lab/internal/configstore"
	"solana-copytrade-lab/internal/copytrade"
	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/ranking"
	"solana-copytrade-lab/internal/solana"
	"solana-copytrade-lab/internal/storage"
	"solana-copytrade-lab/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClassifier struct {
	snap    *domain.ClassificationSnapshot
	history []*storage.ClassificationRecord
}

func (f *fakeClassifier) Snapshot() *domain.ClassificationSnapshot { return f.snap.Clone() }

func (f *fakeClassifier) Report(ctx context.Context) (*ranking.Report, error) {
	return &ranking.Report{}, nil
}

func (f *fakeClassifier) WalletHistory(ctx context.Context, wallet string) ([]*storage.ClassificationRecord, error) {
	return f.history, nil
}

type fakeController struct {
	status  copytrade.Status
	stopped []string
	resumed []string
}

func (f *fakeController) Status() copytrade.Status { return f.status }

func (f *fakeController) FollowerStatus(sessionID string) (copytrade.FollowerStatus, error) {
	for _, fs := range f.status.Followers {
		if fs.SessionID == sessionID {
			return fs, nil
		}
	}
	return copytrade.FollowerStatus{}, copytrade.ErrUnknownSession
}

func (f *fakeController) EmergencyStop(ctx context.Context, sessionID string) error {
	if sessionID != "" {
		if _, err := f.FollowerStatus(sessionID); err != nil {
			return err
		}
	}
	f.stopped = append(f.stopped, sessionID)
	return nil
}

func (f *fakeController) Resume(ctx context.Context, sessionID string) error {
	if _, err := f.FollowerStatus(sessionID); err != nil {
		return err
	}
	f.resumed = append(f.resumed, sessionID)
	return nil
}

type fixture struct {
	server     *Server
	classifier *fakeClassifier
	controller *fakeController
	configs    *configstore.Service
	orders     *memory.MirroredOrderStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	fx := &fixture{
		classifier: &fakeClassifier{snap: &domain.ClassificationSnapshot{
			CohortID: "cohort-1",
			Status:   domain.SnapshotComplete,
			Classifications: []domain.WalletClassification{
				{WalletAddress: "w1", Tier: domain.TierLegend, TotalWins: 3},
				{WalletAddress: "w2", Tier: domain.TierLucky, TotalWins: 1},
			},
			TrackedTokens: 3,
			ComputedAt:    now.UnixMilli(),
		}},
		controller: &fakeController{status: copytrade.Status{
			Followers:      []copytrade.FollowerStatus{{SessionID: "s1", TargetWallet: "target", Filled: 2}},
			WatchedWallets: 1,
			OpenPositions:  1,
		}},
		configs: configstore.NewServiceWithClock(memory.NewCopyTradeConfigStore(), func() time.Time { return now }, logger),
		orders:  memory.NewMirroredOrderStore(),
	}
	fx.server = New(Options{
		Classifier: fx.classifier,
		Controller: fx.controller,
		Configs:    fx.configs,
		Orders:     fx.orders,
		Logger:     logger,
	})
	return fx
}

func (fx *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func walletAddress(t *testing.T) string {
	t.Helper()
	addr, err := solana.EncodeAddress(edwards25519.NewGeneratorPoint().Bytes())
	require.NoError(t, err)
	return addr
}

func TestHealthAndStatus(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = fx.do(t, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatusResponse](t, rec)
	assert.Equal(t, "running", st.Status)
	require.NotNil(t, st.Classification)
	assert.Equal(t, domain.SnapshotComplete, st.Classification.Status)
	assert.Equal(t, 2, st.Classification.Wallets)
	require.NotNil(t, st.CopyTrade)
	assert.Equal(t, 1, st.CopyTrade.Followers)
	assert.Equal(t, 1, st.CopyTrade.OpenPositions)
}

func TestMetricsEndpoint(t *testing.T) {
	fx := newFixture(t)
	rec := fx.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestClassifications(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/api/v1/classifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[domain.ClassificationSnapshot](t, rec)
	assert.Len(t, snap.Classifications, 2)

	rec = fx.do(t, http.MethodGet, "/api/v1/classifications?tier=legend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decode[domain.ClassificationSnapshot](t, rec)
	require.Len(t, snap.Classifications, 1)
	assert.Equal(t, "w1", snap.Classifications[0].WalletAddress)

	// Filtering must not mutate the classifier's snapshot.
	assert.Len(t, fx.classifier.snap.Classifications, 2)

	rec = fx.do(t, http.MethodGet, "/api/v1/classifications?tier=whale", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClassifications_NotYetAnalyzed(t *testing.T) {
	fx := newFixture(t)
	fx.classifier.snap = &domain.ClassificationSnapshot{
		Status:          domain.SnapshotNotYetAnalyzed,
		Classifications: []domain.WalletClassification{},
	}

	rec := fx.do(t, http.MethodGet, "/api/v1/classifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[domain.ClassificationSnapshot](t, rec)
	assert.Equal(t, domain.SnapshotNotYetAnalyzed, snap.Status)
	assert.Empty(t, snap.Classifications)
}

func TestCopyTradeControls(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodGet, "/api/v1/copytrade/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[SessionResponse](t, rec)
	assert.Equal(t, "target", st.TargetWallet)
	assert.Equal(t, 2, st.Filled)
	assert.Nil(t, st.TradeableNow, "no config saved for s1")

	rec = fx.do(t, http.MethodGet, "/api/v1/copytrade/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(t, http.MethodPost, "/api/v1/copytrade/sessions/s1/emergency-stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = fx.do(t, http.MethodPost, "/api/v1/copytrade/emergency-stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1", ""}, fx.controller.stopped)

	rec = fx.do(t, http.MethodPost, "/api/v1/copytrade/sessions/nope/resume", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = fx.do(t, http.MethodPost, "/api/v1/copytrade/sessions/s1/resume", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"s1"}, fx.controller.resumed)
}

func TestListOrders(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, fx.orders.Insert(ctx, &domain.MirroredOrder{
			SourceTradeID: id,
			SessionID:     "s1",
			Side:          domain.SideBuy,
			Size:          decimal.NewFromInt(1),
			Status:        domain.OrderPending,
			CreatedAt:     int64(i + 1),
			UpdatedAt:     int64(i + 1),
		}))
	}

	rec := fx.do(t, http.MethodGet, "/api/v1/copytrade/sessions/s1/orders?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Data  []domain.MirroredOrder `json:"data"`
		Limit int                    `json:"limit"`
	}](t, rec)
	assert.Equal(t, 2, body.Limit)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "c", body.Data[0].SourceTradeID)
}

func TestConfigs(t *testing.T) {
	fx := newFixture(t)

	cfg := map[string]any{
		"session_id":    "s1",
		"target_wallet": walletAddress(t),
		"mode":          "paper",
		"budget":        map[string]any{"amount": "25"},
		"schedule": map[string]any{
			"start_date": "2026-10-01",
			"timezone":   "UTC",
		},
		"risk": map[string]any{
			"max_trade_size":         "2",
			"small_trade_multiplier": "1",
			"stop_loss_percent":      "20",
			"max_positions":          3,
		},
	}

	rec := fx.do(t, http.MethodPost, "/api/v1/configs", cfg)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	stored := decode[domain.CopyTradeConfig](t, rec)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "SOL", stored.Budget.Currency)

	rec = fx.do(t, http.MethodPost, "/api/v1/configs", cfg)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/configs/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[domain.CopyTradeConfig](t, rec).Version)

	rec = fx.do(t, http.MethodGet, "/api/v1/configs/s1?version=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.CopyTradeConfig](t, rec).Version)

	rec = fx.do(t, http.MethodGet, "/api/v1/configs/s1?version=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/configs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = fx.do(t, http.MethodGet, "/api/v1/configs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Data []domain.CopyTradeConfig `json:"data"`
	}](t, rec)
	assert.Len(t, list.Data, 1)

	// With a config stored, the session view reports the schedule.
	rec = fx.do(t, http.MethodGet, "/api/v1/copytrade/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[SessionResponse](t, rec)
	require.NotNil(t, st.TradeableNow)
	assert.True(t, *st.TradeableNow)
}

func TestConfigs_ValidationError(t *testing.T) {
	fx := newFixture(t)

	rec := fx.do(t, http.MethodPost, "/api/v1/configs", map[string]any{
		"session_id":    "s1",
		"target_wallet": walletAddress(t),
		"budget":        map[string]any{"amount": "0"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "budget.amount", body["field"])

	rec = fx.do(t, http.MethodPost, "/api/v1/configs", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOptionalComponents(t *testing.T) {
	logger, _ := test.NewNullLogger()
	srv := New(Options{Logger: logger})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/classifications", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[StatusResponse](t, rec)
	assert.Nil(t, st.Classification)
	assert.Nil(t, st.CopyTrade)
}

func TestFailMapsErrors(t *testing.T) {
	fx := newFixture(t)
	tests := []struct {
		err  error
		code int
	}{
		{&domain.ConfigurationError{Field: "mode", Reason: "bad"}, http.StatusBadRequest},
		{storage.ErrInvalidInput, http.StatusBadRequest},
		{storage.ErrNotFound, http.StatusNotFound},
		{copytrade.ErrUnknownSession, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		fx.server.fail(c, tt.err)
		assert.Equal(t, tt.code, rec.Code, tt.err.Error())
	}
}
