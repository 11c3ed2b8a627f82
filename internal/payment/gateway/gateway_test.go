package gateway

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testClient() *Client {
	return New(Config{
		BaseURL:      "https://pay.example.com/paymentv2/vpcpay.html",
		MerchantCode: "LEDGER01",
		Secret:       "test-secret",
		ReturnURL:    "http://localhost:8080/v1/payments/gateway/callback",
	})
}

func TestBuildPaymentURL(t *testing.T) {
	c := testClient()

	raw, err := c.BuildPaymentURL(PaymentRequest{
		TxnRef:    "12345",
		Amount:    250000,
		OrderInfo: "INV-202608-1",
		ClientIP:  "10.0.0.1",
		CreatedAt: time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC),
	})
	assert.NoError(t, err)

	parsed, err := url.Parse(raw)
	assert.NoError(t, err)
	query := parsed.Query()

	// The wire amount is the invoice amount times 100.
	assert.Equal(t, "25000000", query.Get("vnp_Amount"))
	assert.Equal(t, "12345", query.Get("vnp_TxnRef"))
	assert.Equal(t, "LEDGER01", query.Get("vnp_TmnCode"))
	assert.Equal(t, "20260801103000", query.Get("vnp_CreateDate"))
	assert.NotEmpty(t, query.Get("vnp_SecureHash"))
}

func TestBuildPaymentURL_Invalid(t *testing.T) {
	c := testClient()

	_, err := c.BuildPaymentURL(PaymentRequest{TxnRef: "", Amount: 100, CreatedAt: time.Now()})
	assert.Error(t, err)

	_, err = c.BuildPaymentURL(PaymentRequest{TxnRef: "1", Amount: 0, CreatedAt: time.Now()})
	assert.Error(t, err)
}

func TestVerifyCallback_RoundTrip(t *testing.T) {
	c := testClient()

	params := url.Values{}
	params.Set("vnp_TxnRef", "12345")
	params.Set("vnp_Amount", "25000000")
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_BankCode", "NCB")
	params.Set("vnp_CardType", "ATM")
	params.Set("vnp_PayDate", "20260801104500")
	params.Set("vnp_SecureHash", c.sign(canonicalQuery(params)))

	cb, err := c.VerifyCallback(params)
	assert.NoError(t, err)
	assert.Equal(t, "12345", cb.TxnRef)
	assert.Equal(t, int64(250000), cb.Amount)
	assert.Equal(t, "00", cb.ResponseCode)
	assert.Equal(t, "NCB", cb.BankCode)
	assert.True(t, cb.Succeeded(c.SuccessCode()))
	assert.NotNil(t, cb.PaidAt)
}

func TestVerifyCallback_TamperedAmountRejected(t *testing.T) {
	c := testClient()

	params := url.Values{}
	params.Set("vnp_TxnRef", "12345")
	params.Set("vnp_Amount", "25000000")
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_SecureHash", c.sign(canonicalQuery(params)))

	params.Set("vnp_Amount", "100")
	_, err := c.VerifyCallback(params)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyCallback_MissingSignature(t *testing.T) {
	c := testClient()

	params := url.Values{}
	params.Set("vnp_TxnRef", "12345")
	_, err := c.VerifyCallback(params)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
