package gateway

import (
	"context"
	"crypto/hmac"
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

type jazzCash struct {
	cfg config.GatewayConfig
}

func NewJazzCash(cfg config.GatewayConfig) Adapter {
	return &jazzCash{cfg: cfg}
}

func (j *jazzCash) Provider() Provider { return JazzCash }

func (j *jazzCash) CreatePaymentRequest(ctx context.Context, req Request) (*PaymentForm, error) {
	if !j.cfg.Enabled {
		return nil, errutil.UnprocessableEntity("JazzCash gateway is not enabled", nil)
	}

	txnRef, err := newTxnRef("T")
	if err != nil {
		return nil, errutil.Internal("failed to generate transaction reference", err)
	}

	now := time.Now()
	fields := map[string]string{
		"pp_Version":           "1.1",
		"pp_TxnType":           "MWALLET",
		"pp_Language":          "EN",
		"pp_MerchantID":        j.cfg.MerchantID,
		"pp_Password":          j.cfg.Password,
		"pp_TxnRefNo":          txnRef,
		"pp_Amount":            strconv.FormatInt(int64(req.Amount*100), 10),
		"pp_TxnCurrency":       "PKR",
		"pp_TxnDateTime":       now.Format("20060102150405"),
		"pp_TxnExpiryDateTime": now.Add(time.Hour).Format("20060102150405"),
		"pp_BillReference":     req.TransactionID,
		"pp_Description":       req.Description,
		"pp_ReturnURL":         j.cfg.ReturnURL,
		"ppmpf_1":              req.UserID,
	}
	fields["pp_SecureHash"] = j.sign(fields)

	zap.L().Info("jazzcash payment request created",
		zap.String("txn_ref", txnRef),
		zap.Float64("amount", req.Amount),
	)

	return &PaymentForm{
		TransactionID: txnRef,
		PaymentURL:    j.cfg.Endpoint,
		FormData:      fields,
	}, nil
}

func (j *jazzCash) VerifyCallback(ctx context.Context, params map[string]string, clientIP string) (*CallbackResult, error) {
	received := params["pp_SecureHash"]
	expected := j.sign(params)

	result := &CallbackResult{
		TransactionID:   params["pp_TxnRefNo"],
		ResponseCode:    params["pp_ResponseCode"],
		ResponseMessage: params["pp_ResponseMessage"],
		Raw:             params,
	}

	if amt, err := strconv.ParseFloat(params["pp_Amount"], 64); err == nil {
		result.Amount = amt / 100
	}

	if received == "" || !strings.EqualFold(received, expected) {
		zap.L().Warn("jazzcash callback hash mismatch",
			zap.String("txn_ref", result.TransactionID),
		)
		return result, nil
	}

	result.Valid = true
	result.Successful = params["pp_ResponseCode"] == "000"
	return result, nil
}

// sign computes the JazzCash secure hash: the integrity salt followed by
// every non-empty pp_* value in key order, joined with '&', HMAC-SHA256
// keyed with the same salt. pp_SecureHash itself is excluded.
func (j *jazzCash) sign(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "pp_SecureHash" || !strings.HasPrefix(strings.ToLower(k), "pp") {
			continue
		}
		if fields[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, j.cfg.Secret)
	for _, k := range keys {
		parts = append(parts, fields[k])
	}

	mac := hmac.New(sha256.New, []byte(j.cfg.Secret))
	fmt.Fprint(mac, strings.Join(parts, "&"))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
