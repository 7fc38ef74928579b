package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"garments-erp/internal/app"
	"garments-erp/internal/config"
	"garments-erp/internal/core"
	ierr "garments-erp/internal/errors"
)

const testSecret = "test-secret"

// fakeService implements only what the tests hit; anything else panics on the nil embedded interface.
type fakeService struct {
	app.ApplicationService
	healthErr error
	err       error
	actor     string
	billReq   app.CreateBillRequest
	payReq    app.PaymentRequest
	postReq   app.PostPurchaseRequest
	journal   app.JournalRequest
	adjust    app.StockAdjustmentRequest
	supPay    app.SupplierPaymentRequest
}

func (f *fakeService) Health(context.Context) error { return f.healthErr }

func (f *fakeService) CreateBill(_ context.Context, req app.CreateBillRequest, actor string) (*core.SalesBill, error) {
	f.billReq, f.actor = req, actor
	if f.err != nil {
		return nil, f.err
	}
	return &core.SalesBill{ID: 1, BillNumber: "A0001", Status: core.BillDraft}, nil
}

func (f *fakeService) GetBill(_ context.Context, id int) (*app.BillResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	bill := &core.SalesBill{ID: id, BillNumber: "A0001", PaymentStatus: core.PaymentPending}
	return &app.BillResult{SalesBill: bill, EffectivePaymentStatus: core.PaymentOverdue}, nil
}

func (f *fakeService) AddPayment(_ context.Context, id int, req app.PaymentRequest, actor string) (*app.BillResult, error) {
	f.payReq, f.actor = req, actor
	bill := &core.SalesBill{ID: id, PaymentStatus: core.PaymentPartial}
	return &app.BillResult{SalesBill: bill, EffectivePaymentStatus: core.PaymentPartial}, nil
}

func (f *fakeService) PostPurchase(_ context.Context, id int, req app.PostPurchaseRequest, actor string) (*core.Purchase, error) {
	f.postReq, f.actor = req, actor
	return &core.Purchase{ID: id, Status: core.DocPosted}, nil
}

func (f *fakeService) PreviewBillNumber(context.Context, int) (core.BillNumber, error) {
	return core.BillNumber{}, f.err
}

func (f *fakeService) VerifyStock(_ context.Context, variantID int) (core.StockCheck, error) {
	return core.StockCheck{VariantID: variantID, Cached: decimal.NewFromInt(4), Recomputed: decimal.NewFromInt(5), ChainOK: true}, nil
}

func (f *fakeService) PostJournal(_ context.Context, req app.JournalRequest, actor string) (*core.TransactionBatch, error) {
	f.journal, f.actor = req, actor
	if f.err != nil {
		return nil, f.err
	}
	return &core.TransactionBatch{ID: 11, ReferenceType: core.RefJournal, ReferenceID: "JNL202404150001"}, nil
}

func (f *fakeService) AdjustStock(_ context.Context, req app.StockAdjustmentRequest, actor string) (*core.StockLedgerEntry, error) {
	f.adjust, f.actor = req, actor
	if f.err != nil {
		return nil, f.err
	}
	return &core.StockLedgerEntry{ID: 21, VariantID: req.ProductVariantID, MovementType: core.MovementIn}, nil
}

func (f *fakeService) PaySupplier(_ context.Context, req app.SupplierPaymentRequest, actor string) (*core.SupplierPayment, error) {
	f.supPay, f.actor = req, actor
	return &core.SupplierPayment{ID: 31, PaymentNumber: "SPAY202404150001", SupplierID: req.SupplierID}, nil
}

func (f *fakeService) GetSupplierOutstanding(_ context.Context, supplierID int) ([]core.OutstandingPurchase, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []core.OutstandingPurchase{{PurchaseID: 4, PurchaseNumber: "PUR202404150001", Outstanding: decimal.NewFromInt(600)}}, nil
}

func newTestServer(svc app.ApplicationService, authEnabled bool) http.Handler {
	return NewHandler(svc,
		config.ServerConfig{Address: ":0", BodyLimitBytes: 1 << 10},
		config.AuthConfig{Enabled: authEnabled, JWTSecret: testSecret})
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func signedToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	claims := &jwtClaims{
		Role: "cashier",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}, false), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, newTestServer(&fakeService{healthErr: context.DeadlineExceeded}, false), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID_EchoesSafeCallerID(t *testing.T) {
	h := newTestServer(&fakeService{}, false)

	rec := do(t, h, http.MethodGet, "/api/health", "", "X-Request-ID", "till-7-abc")
	assert.Equal(t, "till-7-abc", rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/api/health", "", "X-Request-ID", "<script>")
	assert.NotEqual(t, "<script>", rec.Header().Get("X-Request-ID"))
}

func TestCreateBill(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(svc, false)

	body := `{"bill_book_id": 1, "customer_id": 2, "items": [{"product_variant_id": 3, "quantity": "2", "rate": "1180"}]}`
	rec := do(t, h, http.MethodPost, "/api/sales-bills", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, systemActor, svc.actor)
	require.Len(t, svc.billReq.Items, 1)
	assert.Equal(t, 3, svc.billReq.Items[0].ProductVariantID)
	require.NotNil(t, svc.billReq.Items[0].Rate)
	assert.True(t, decimal.NewFromInt(1180).Equal(*svc.billReq.Items[0].Rate))
}

func TestCreateBill_OmittedRateStaysNil(t *testing.T) {
	svc := &fakeService{}
	body := `{"bill_book_id": 1, "customer_id": 2, "items": [{"product_variant_id": 3, "quantity": "2"}]}`
	rec := do(t, newTestServer(svc, false), http.MethodPost, "/api/sales-bills", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, svc.billReq.Items, 1)
	assert.Nil(t, svc.billReq.Items[0].Rate)
}

func TestAddPayment_DecodesPaymentFields(t *testing.T) {
	svc := &fakeService{}
	body := `{"payment_date": "2024-04-20", "payment_amount": "100", "payment_method": "CASH", "payment_reference": "till-3"}`
	rec := do(t, newTestServer(svc, false), http.MethodPost, "/api/sales-bills/5/payments", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decimal.NewFromInt(100).Equal(svc.payReq.PaymentAmount))
	assert.Equal(t, "CASH", svc.payReq.PaymentMethod)
	assert.Equal(t, "till-3", svc.payReq.Reference)
	assert.Equal(t, "2024-04-20", svc.payReq.PaymentDate)
}

func TestCreateBill_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name: "validation",
			err: ierr.NewError("bad").WithHint("Request validation failed").
				WithReportableDetails(map[string]any{"items": "required"}).Mark(ierr.ErrInvalidInput),
			status: http.StatusBadRequest,
			code:   ierr.KindInvalidInput,
		},
		{"inactive book", ierr.NewError("book 3").Mark(ierr.ErrBookInactive), http.StatusConflict, ierr.KindBookInactive},
		{"short stock", ierr.NewError("variant 2").Mark(ierr.ErrInsufficientStock), http.StatusUnprocessableEntity, ierr.KindInsufficientStock},
		{"driver failure", ierr.NewError("pq: connection reset").Mark(ierr.ErrDatabase), http.StatusInternalServerError, ierr.KindDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(&fakeService{err: tt.err}, false)
			rec := do(t, h, http.MethodPost, "/api/sales-bills", `{"bill_book_id": 1}`)

			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
			assert.NotContains(t, resp.Error, "pq:", "driver text must not leak")
		})
	}
}

func TestCreateBill_ValidationDetailsReachClient(t *testing.T) {
	err := ierr.NewError("bad").WithHint("Request validation failed").
		WithReportableDetails(map[string]any{"items[0].quantity": "gt"}).Mark(ierr.ErrInvalidInput)
	h := newTestServer(&fakeService{err: err}, false)

	resp := decodeError(t, do(t, h, http.MethodPost, "/api/sales-bills", `{}`))
	assert.Equal(t, "Request validation failed", resp.Error)
	assert.Equal(t, "gt", resp.Details["items[0].quantity"])
}

func TestDecodeJSON_Errors(t *testing.T) {
	h := newTestServer(&fakeService{}, false)

	rec := do(t, h, http.MethodPost, "/api/sales-bills", `{"bill_book_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := `{"remarks": "` + strings.Repeat("x", 2048) + `"}`
	rec = do(t, h, http.MethodPost, "/api/sales-bills", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIDParam_RejectsNonNumeric(t *testing.T) {
	h := newTestServer(&fakeService{}, false)

	rec := do(t, h, http.MethodGet, "/api/sales-bills/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ierr.KindInvalidInput, decodeError(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/sales-bills/0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBill_ReturnsEffectiveStatus(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}, false), http.MethodGet, "/api/sales-bills/9", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(9), body["id"])
	assert.Equal(t, "PENDING", body["payment_status"])
	assert.Equal(t, "OVERDUE", body["effective_payment_status"])
}

func TestGetBill_NotFound(t *testing.T) {
	h := newTestServer(&fakeService{err: ierr.NewError("bill 9").Mark(ierr.ErrNotFound)}, false)
	rec := do(t, h, http.MethodGet, "/api/sales-bills/9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ierr.KindNotFound, decodeError(t, rec).Code)
}

func TestPostPurchase_EmptyBodyDefaults(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(svc, false)

	rec := do(t, h, http.MethodPost, "/api/purchases/4/post", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Nil(t, svc.postReq.ToStock)
	assert.Nil(t, svc.postReq.ToLedger)

	rec = do(t, h, http.MethodPost, "/api/purchases/4/post", `{"to_ledger": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.postReq.ToLedger)
	assert.False(t, *svc.postReq.ToLedger)
}

func TestVerifyStock_ReportsVerdict(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}, false), http.MethodGet, "/api/stock/3/verify", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Consistent bool `json:"consistent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Consistent)
}

func TestAuth(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(svc, true)
	body := `{"bill_book_id": 1}`

	t.Run("missing token", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/sales-bills", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signedToken(t, "meena", time.Now().Add(-time.Minute))
		rec := do(t, h, http.MethodPost, "/api/sales-bills", body, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		claims := &jwtClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "meena"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
		require.NoError(t, err)
		rec := do(t, h, http.MethodPost, "/api/sales-bills", body, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("subject becomes actor", func(t *testing.T) {
		token := signedToken(t, "meena", time.Now().Add(time.Hour))
		rec := do(t, h, http.MethodPost, "/api/sales-bills", body, "Authorization", "Bearer "+token)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "meena", svc.actor)
	})

	t.Run("health stays public", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCORS(t *testing.T) {
	h := NewHandler(&fakeService{}, config.ServerConfig{AllowedOrigins: "https://shop.example, https://pos.example", BodyLimitBytes: 1024}, config.AuthConfig{})

	rec := do(t, h, http.MethodOptions, "/api/health", "", "Origin", "https://pos.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://pos.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodGet, "/api/health", "", "Origin", "https://evil.example")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	h := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ierr.KindSystem, decodeError(t, rec).Code)
}

func TestPreviewBillNumber_InactiveBook(t *testing.T) {
	h := newTestServer(&fakeService{err: ierr.NewError("book 3").Mark(ierr.ErrBookInactive)}, false)
	rec := do(t, h, http.MethodGet, "/api/bill-books/3/next-number", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type reportService struct {
	fakeService
	from, to string
}

func (f *reportService) GetProfitAndLoss(_ context.Context, from, to string) (*core.PLReport, error) {
	f.from, f.to = from, to
	return &core.PLReport{NetIncome: decimal.NewFromInt(120)}, nil
}

func TestProfitAndLoss_PassesQuery(t *testing.T) {
	svc := &reportService{}
	rec := do(t, newTestServer(svc, false), http.MethodGet, "/api/reports/profit-and-loss?from=2024-04-01&to=2024-04-30", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-04-01", svc.from)
	assert.Equal(t, "2024-04-30", svc.to)
	assert.Contains(t, rec.Body.String(), `"net_income":"120"`)
}

func TestPostJournal_DecodesEntries(t *testing.T) {
	svc := &fakeService{}
	body := `{"date": "2024-04-15", "description": "Owner capital", "entries": [
		{"account_code": "BANK001", "debit": "5000"},
		{"account_code": "CAP001", "credit": "3000"},
		{"account_code": "LOAN001", "credit": "2000"}]}`
	rec := do(t, newTestServer(svc, false), http.MethodPost, "/api/ledger/journals", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, svc.journal.Entries, 3)
	assert.Equal(t, "CAP001", svc.journal.Entries[1].AccountCode)
	assert.True(t, decimal.NewFromInt(2000).Equal(svc.journal.Entries[2].Credit))
	assert.Contains(t, rec.Body.String(), `"reference_id":"JNL202404150001"`)
}

func TestPostJournal_InvalidEntryIsBadRequest(t *testing.T) {
	err := ierr.NewError("entry 2 (CASH001): exactly one of debit and credit must be non-zero").Mark(ierr.ErrInvalidEntry)
	rec := do(t, newTestServer(&fakeService{err: err}, false), http.MethodPost, "/api/ledger/journals", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ierr.KindInvalidEntry, decodeError(t, rec).Code)
}

func TestAdjustStock_DoesNotCollideWithVariantRoutes(t *testing.T) {
	svc := &fakeService{}
	body := `{"product_variant_id": 2, "movement_type": "IN", "adjustment_type": "OPENING", "quantity": "40", "rate": "700"}`
	rec := do(t, newTestServer(svc, false), http.MethodPost, "/api/stock/adjustments", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, svc.adjust.ProductVariantID)
	assert.Equal(t, "OPENING", svc.adjust.AdjustmentType)
	assert.True(t, decimal.NewFromInt(40).Equal(svc.adjust.Quantity))
}

func TestPaySupplier_DecodesAllocations(t *testing.T) {
	svc := &fakeService{}
	body := `{"supplier_id": 1, "payment_method": "BANK", "payment_reference": "UTR991",
		"allocations": [{"purchase_id": 4, "amount": "600"}, {"purchase_id": 5, "amount": "150.50"}]}`
	rec := do(t, newTestServer(svc, false), http.MethodPost, "/api/supplier-payments", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, systemActor, svc.actor)
	assert.Equal(t, "UTR991", svc.supPay.Reference)
	require.Len(t, svc.supPay.Allocations, 2)
	assert.Equal(t, 5, svc.supPay.Allocations[1].PurchaseID)
	assert.True(t, decimal.RequireFromString("150.50").Equal(svc.supPay.Allocations[1].Amount))
}

func TestSupplierOutstanding(t *testing.T) {
	rec := do(t, newTestServer(&fakeService{}, false), http.MethodGet, "/api/suppliers/1/outstanding", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outstanding":"600"`)

	h := newTestServer(&fakeService{err: ierr.NewError("supplier 9").Mark(ierr.ErrNotFound)}, false)
	rec = do(t, h, http.MethodGet, "/api/suppliers/9/outstanding", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
