package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/errutil"

	"go.uber.org/zap"
)

type easyPaisa struct {
	cfg config.GatewayConfig
}

func NewEasyPaisa(cfg config.GatewayConfig) Adapter {
	return &easyPaisa{cfg: cfg}
}

func (e *easyPaisa) Provider() Provider { return EasyPaisa }

func (e *easyPaisa) CreatePaymentRequest(ctx context.Context, req Request) (*PaymentForm, error) {
	if !e.cfg.Enabled {
		return nil, errutil.UnprocessableEntity("EasyPaisa gateway is not enabled", nil)
	}

	orderRef, err := newTxnRef("EP")
	if err != nil {
		return nil, errutil.Internal("failed to generate transaction reference", err)
	}

	fields := map[string]string{
		"storeId":       e.cfg.MerchantID,
		"orderRefNum":   orderRef,
		"amount":        strconv.FormatFloat(req.Amount, 'f', 2, 64),
		"paymentMethod": "MA_PAYMENT_METHOD",
		"postBackURL":   e.cfg.NotifyURL,
		"expiryDate":    time.Now().Add(time.Hour).Format("20060102 150405"),
		"emailAddr":     req.Email,
		"mobileNum":     req.MobileNumber,
	}
	fields["merchantHashedReq"] = e.sign(fields)

	zap.L().Info("easypaisa payment request created",
		zap.String("order_ref", orderRef),
		zap.Float64("amount", req.Amount),
	)

	return &PaymentForm{
		TransactionID: orderRef,
		PaymentURL:    e.cfg.Endpoint,
		FormData:      fields,
	}, nil
}

func (e *easyPaisa) VerifyCallback(ctx context.Context, params map[string]string, clientIP string) (*CallbackResult, error) {
	received := params["merchantHashedReq"]
	expected := e.sign(params)

	result := &CallbackResult{
		TransactionID:   params["orderRefNum"],
		ResponseCode:    params["status"],
		ResponseMessage: params["desc"],
		Raw:             params,
	}

	if amt, err := strconv.ParseFloat(params["amount"], 64); err == nil {
		result.Amount = amt
	}

	if received == "" || !strings.EqualFold(received, expected) {
		zap.L().Warn("easypaisa callback hash mismatch",
			zap.String("order_ref", result.TransactionID),
		)
		return result, nil
	}

	result.Valid = true
	result.Successful = params["status"] == "0000"
	return result, nil
}

// sign computes the EasyPaisa request hash: non-empty key=value pairs in key
// order joined with '&', the hash key appended, SHA-256 over the whole
// string. merchantHashedReq itself is excluded.
func (e *easyPaisa) sign(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "merchantHashedReq" || fields[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "&") + e.cfg.Secret))
	return hex.EncodeToString(sum[:])
}
