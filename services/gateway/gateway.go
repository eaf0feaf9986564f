package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"creatorpay/pkg/config"

	"go.uber.org/fx"
)

// Provider identifies a payment gateway.
type Provider string

var (
	JazzCash     Provider = "jazzcash"
	EasyPaisa    Provider = "easypaisa"
	PayFast      Provider = "payfast"
	BankTransfer Provider = "bank_transfer"
)

func (p Provider) String() string {
	switch p {
	case JazzCash, EasyPaisa, PayFast, BankTransfer:
		return string(p)
	default:
		return ""
	}
}

// Request is what the payment service hands an adapter to start a payment.
type Request struct {
	TransactionID string
	Amount        float64
	Description   string
	UserID        string
	Name          string
	Email         string
	MobileNumber  string
}

// PaymentForm is the signed redirect the client posts to the provider.
type PaymentForm struct {
	TransactionID string            `json:"transactionId"`
	PaymentURL    string            `json:"paymentUrl"`
	FormData      map[string]string `json:"formData"`
}

// CallbackResult is an adapter's verdict on a provider notification.
// Valid=false means the signature did not check out and nothing else in the
// payload may be believed, whatever its own status fields claim.
type CallbackResult struct {
	Valid           bool
	Successful      bool
	TransactionID   string
	Amount          float64
	ResponseCode    string
	ResponseMessage string
	Raw             map[string]string
}

type Adapter interface {
	Provider() Provider
	CreatePaymentRequest(ctx context.Context, req Request) (*PaymentForm, error)
	VerifyCallback(ctx context.Context, params map[string]string, clientIP string) (*CallbackResult, error)
}

// Registry resolves the adapter for a provider.
type Registry struct {
	adapters map[Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[Provider]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Provider()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) For(p Provider) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

var Module = fx.Module("gateway",
	fx.Provide(provideRegistry),
)

func provideRegistry(cfg *config.Config) *Registry {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return NewRegistry(
		NewJazzCash(cfg.JazzCash),
		NewEasyPaisa(cfg.EasyPaisa),
		NewPayFast(cfg.PayFast, cfg.AppEnv, httpClient),
	)
}

// newTxnRef builds the locally unique transaction reference an adapter embeds
// in its request. Generated before the provider is contacted so a callback
// can always be correlated, even when the outbound call fails.
func newTxnRef(prefix string) (string, error) {
	datePart := time.Now().Format("20060102")

	r := make([]byte, 4)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	randomPart := strings.ToUpper(fmt.Sprintf("%x", r))

	return fmt.Sprintf("%s%s%s", prefix, datePart, randomPart), nil
}
