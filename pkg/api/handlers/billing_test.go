package handlers

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/internlink/internlink/pkg/billing"
	"github.com/internlink/internlink/pkg/metrics"
	"github.com/internlink/internlink/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

var testMetrics = metrics.New()

func newTestBillingHandler() *BillingHandler {
	svc := billing.NewService(nil, &billing.StripeConfig{
		WebhookSecret: testWebhookSecret,
		Prices: billing.PlanPrices{
			Starter: "price_starter",
			Pro:     "price_pro",
		},
	}, nil, nil)
	return NewBillingHandler(svc, testMetrics)
}

func newWebhookContext(payload []byte, signature string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/stripe", strings.NewReader(string(payload)))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func signPayload(t *testing.T, payload []byte) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	h := newTestBillingHandler()
	c, rec := newWebhookContext([]byte(`{}`), "")

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "missing_signature", resp.Error)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	h := newTestBillingHandler()
	c, rec := newWebhookContext([]byte(`{}`), "t=1,v1=bogus")

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_signature", resp.Error)
}

func TestHandleWebhook_ValidSignatureUnhandledType(t *testing.T) {
	h := newTestBillingHandler()
	payload := []byte(fmt.Sprintf(`{"id":"evt_test","type":"invoice.paid","api_version":%q,"data":{"object":{}}}`, stripe.APIVersion))

	c, rec := newWebhookContext(payload, signPayload(t, payload))

	require.NoError(t, h.HandleWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.False(t, resp.Duplicate)
}

func TestCreateCheckout_Unauthorized(t *testing.T) {
	h := newTestBillingHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"tier":"pro"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.CreateCheckout(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateCheckout_InvalidTier(t *testing.T) {
	h := newTestBillingHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"tier":"enterprise"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "user-1")

	require.NoError(t, h.CreateCheckout(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPricing(t *testing.T) {
	h := newTestBillingHandler()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/pricing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.GetPricing(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.PricingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.EmployerPlans, 3)
	assert.Equal(t, int64(billing.StudentPremiumMonthlyPriceCents), resp.StudentPremiumPriceCents)
}

func TestValidateReturnURL(t *testing.T) {
	const defaultURL = "https://internlink.io/dashboard/billing"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty falls back to default", "", defaultURL},
		{"allowed production host", "https://internlink.io/settings", "https://internlink.io/settings"},
		{"allowed www host", "https://www.internlink.io/settings", "https://www.internlink.io/settings"},
		{"allowed dev host", "http://localhost:3000/settings", "http://localhost:3000/settings"},
		{"unknown host rejected", "https://evil.example.com/settings", defaultURL},
		{"javascript scheme rejected", "javascript:alert(1)", defaultURL},
		{"userinfo rejected", "https://attacker@internlink.io/settings", defaultURL},
		{"subdomain spoof rejected", "https://internlink.io.evil.com/x", defaultURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validateReturnURL(tt.in))
		})
	}
}
