// Package gateway implements the hosted-payment-page protocol: signed
// redirect URLs out, signed callbacks in. Amounts on the wire are the
// invoice amount multiplied by 100.
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	version = "2.1.0"
	command = "pay"

	paramAmount       = "vnp_Amount"
	paramBankCode     = "vnp_BankCode"
	paramCardType     = "vnp_CardType"
	paramResponseCode = "vnp_ResponseCode"
	paramSecureHash   = "vnp_SecureHash"
	paramSecureType   = "vnp_SecureHashType"
	paramTxnRef       = "vnp_TxnRef"
	paramPayDate      = "vnp_PayDate"
	paramOrderInfo    = "vnp_OrderInfo"
)

// Config carries the merchant credentials for one gateway account.
type Config struct {
	BaseURL      string
	MerchantCode string
	Secret       string
	SuccessCode  string
	ReturnURL    string
}

// Client signs and verifies gateway exchanges.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.SuccessCode == "" {
		cfg.SuccessCode = "00"
	}
	return &Client{cfg: cfg}
}

// PaymentRequest describes one redirect to the hosted payment page.
type PaymentRequest struct {
	TxnRef    string
	Amount    int64
	OrderInfo string
	Currency  string
	Locale    string
	ClientIP  string
	CreatedAt time.Time
}

// BuildPaymentURL produces the signed redirect URL for a payment attempt.
func (c *Client) BuildPaymentURL(req PaymentRequest) (string, error) {
	if strings.TrimSpace(req.TxnRef) == "" {
		return "", fmt.Errorf("txn_ref is required")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}

	currency := req.Currency
	if currency == "" {
		currency = "VND"
	}
	locale := req.Locale
	if locale == "" {
		locale = "vn"
	}

	params := url.Values{}
	params.Set("vnp_Version", version)
	params.Set("vnp_Command", command)
	params.Set("vnp_TmnCode", c.cfg.MerchantCode)
	params.Set(paramAmount, fmt.Sprintf("%d", req.Amount*100))
	params.Set("vnp_CreateDate", req.CreatedAt.Format("20060102150405"))
	params.Set("vnp_CurrCode", currency)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_Locale", locale)
	params.Set(paramOrderInfo, req.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_ReturnUrl", c.cfg.ReturnURL)
	params.Set(paramTxnRef, req.TxnRef)

	query := canonicalQuery(params)
	signed := query + "&" + paramSecureHash + "=" + c.sign(query)
	return c.cfg.BaseURL + "?" + signed, nil
}

// Callback is the verified, decoded result of one gateway notification.
type Callback struct {
	TxnRef       string
	Amount       int64
	ResponseCode string
	BankCode     string
	CardType     string
	OrderInfo    string
	PaidAt       *time.Time
}

// Succeeded reports whether the callback carries the configured success code.
func (cb Callback) Succeeded(successCode string) bool {
	return cb.ResponseCode == successCode
}

// VerifyCallback checks the callback signature and decodes its fields.
func (c *Client) VerifyCallback(params url.Values) (*Callback, error) {
	received := params.Get(paramSecureHash)
	if received == "" {
		return nil, ErrInvalidSignature
	}

	filtered := url.Values{}
	for key, values := range params {
		if key == paramSecureHash || key == paramSecureType {
			continue
		}
		for _, v := range values {
			filtered.Add(key, v)
		}
	}

	expected := c.sign(canonicalQuery(filtered))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	cb := &Callback{
		TxnRef:       params.Get(paramTxnRef),
		ResponseCode: params.Get(paramResponseCode),
		BankCode:     params.Get(paramBankCode),
		CardType:     params.Get(paramCardType),
		OrderInfo:    params.Get(paramOrderInfo),
	}
	if cb.TxnRef == "" {
		return nil, ErrMissingTxnRef
	}

	var amount int64
	if raw := params.Get(paramAmount); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &amount); err != nil {
			return nil, ErrInvalidAmount
		}
		// The wire carries amount*100.
		cb.Amount = amount / 100
	}
	if raw := params.Get(paramPayDate); raw != "" {
		if paidAt, err := time.Parse("20060102150405", raw); err == nil {
			cb.PaidAt = &paidAt
		}
	}
	return cb, nil
}

// SuccessCode returns the configured success response code.
func (c *Client) SuccessCode() string {
	return c.cfg.SuccessCode
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha512.New, []byte(c.cfg.Secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery sorts keys and URL-encodes values the way the gateway
// expects them hashed.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(key)))
	}
	return sb.String()
}
