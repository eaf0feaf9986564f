package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"creatorpay/pkg/config"
	"creatorpay/pkg/errutil"

	"go.uber.org/zap"
)

// itnFieldOrder is the order PayFast posts ITN variables in. The signature
// covers fields in this order, not alphabetically.
var itnFieldOrder = []string{
	"m_payment_id",
	"pf_payment_id",
	"payment_status",
	"item_name",
	"item_description",
	"amount_gross",
	"amount_fee",
	"amount_net",
	"custom_str1",
	"custom_str2",
	"custom_str3",
	"custom_str4",
	"custom_str5",
	"custom_int1",
	"custom_int2",
	"custom_int3",
	"custom_int4",
	"custom_int5",
	"name_first",
	"name_last",
	"email_address",
	"merchant_id",
}

type payFast struct {
	cfg    config.PayFastConfig
	env    string
	client *http.Client
}

func NewPayFast(cfg config.PayFastConfig, env string, client *http.Client) Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &payFast{cfg: cfg, env: env, client: client}
}

func (p *payFast) Provider() Provider { return PayFast }

func (p *payFast) CreatePaymentRequest(ctx context.Context, req Request) (*PaymentForm, error) {
	if !p.cfg.Enabled {
		return nil, errutil.UnprocessableEntity("PayFast gateway is not enabled", nil)
	}

	txnRef, err := newTxnRef("PF")
	if err != nil {
		return nil, errutil.Internal("failed to generate transaction reference", err)
	}

	ordered := [][2]string{
		{"merchant_id", p.cfg.MerchantID},
		{"merchant_key", p.cfg.MerchantKey},
		{"return_url", p.cfg.ReturnURL},
		{"cancel_url", p.cfg.CancelURL},
		{"notify_url", p.cfg.NotifyURL},
		{"name_first", req.Name},
		{"email_address", req.Email},
		{"m_payment_id", txnRef},
		{"amount", strconv.FormatFloat(req.Amount, 'f', 2, 64)},
		{"item_name", req.Description},
		{"custom_str1", req.UserID},
	}

	fields := make(map[string]string, len(ordered)+1)
	for _, kv := range ordered {
		if kv[1] != "" {
			fields[kv[0]] = kv[1]
		}
	}
	fields["signature"] = p.signOrdered(ordered)

	zap.L().Info("payfast payment request created",
		zap.String("m_payment_id", txnRef),
		zap.Float64("amount", req.Amount),
	)

	return &PaymentForm{
		TransactionID: txnRef,
		PaymentURL:    p.cfg.Endpoint,
		FormData:      fields,
	}, nil
}

func (p *payFast) VerifyCallback(ctx context.Context, params map[string]string, clientIP string) (*CallbackResult, error) {
	result := &CallbackResult{
		TransactionID:   params["m_payment_id"],
		ResponseCode:    params["payment_status"],
		ResponseMessage: params["item_name"],
		Raw:             params,
	}

	if amt, err := strconv.ParseFloat(params["amount_gross"], 64); err == nil {
		result.Amount = amt
	}

	if p.env == "production" && !p.ipAllowed(clientIP) {
		zap.L().Warn("payfast notification from unlisted source",
			zap.String("client_ip", clientIP),
			zap.String("m_payment_id", result.TransactionID),
		)
		return result, nil
	}

	received := params["signature"]
	ordered := make([][2]string, 0, len(itnFieldOrder))
	for _, k := range itnFieldOrder {
		if v, ok := params[k]; ok {
			ordered = append(ordered, [2]string{k, v})
		}
	}
	if received == "" || !strings.EqualFold(received, p.signOrdered(ordered)) {
		zap.L().Warn("payfast callback signature mismatch",
			zap.String("m_payment_id", result.TransactionID),
		)
		return result, nil
	}

	if p.cfg.ValidateURL != "" {
		ok, err := p.validateWithServer(ctx, ordered)
		if err != nil {
			return nil, errutil.BadGateway("payfast server validation failed", err)
		}
		if !ok {
			zap.L().Warn("payfast rejected notification on server validation",
				zap.String("m_payment_id", result.TransactionID),
			)
			return result, nil
		}
	}

	result.Valid = true
	result.Successful = params["payment_status"] == "COMPLETE"
	return result, nil
}

func (p *payFast) ipAllowed(clientIP string) bool {
	for _, ip := range p.cfg.AllowedIPs {
		if ip == clientIP {
			return true
		}
	}
	return false
}

// signOrdered computes the PayFast signature: non-empty fields url-encoded
// in the given order, the passphrase appended when configured, MD5 over the
// query string.
func (p *payFast) signOrdered(ordered [][2]string) string {
	parts := make([]string, 0, len(ordered)+1)
	for _, kv := range ordered {
		if kv[1] == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", kv[0], url.QueryEscape(kv[1])))
	}
	if p.cfg.Passphrase != "" {
		parts = append(parts, fmt.Sprintf("passphrase=%s", url.QueryEscape(p.cfg.Passphrase)))
	}

	sum := md5.Sum([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(sum[:])
}

// validateWithServer posts the notification back to PayFast for
// confirmation. PayFast answers with a body starting with VALID or INVALID.
func (p *payFast) validateWithServer(ctx context.Context, ordered [][2]string) (bool, error) {
	form := url.Values{}
	for _, kv := range ordered {
		form.Set(kv[0], kv[1])
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.ValidateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(strings.TrimSpace(string(body)), "VALID"), nil
}
