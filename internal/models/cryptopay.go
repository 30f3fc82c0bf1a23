package models

// AppIdentity is the provider's answer to getMe.
type AppIdentity struct {
	AppID                        int64  `json:"app_id"`
	Name                         string `json:"name"`
	PaymentProcessingBotUsername string `json:"payment_processing_bot_username"`
}

// ExchangeRate is one entry of the provider's getExchangeRates result.
// Rate is kept as the provider's string representation; the rate cache parses
// it into a decimal.
type ExchangeRate struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Rate    string `json:"rate"`
	IsValid bool   `json:"is_valid"`
}

// ProviderInvoice mirrors the provider's invoice object. Timestamps stay
// ISO-8601 strings on the wire; consumers parse the ones they need.
type ProviderInvoice struct {
	InvoiceID         int64  `json:"invoice_id"`
	Status            string `json:"status"`
	Hash              string `json:"hash"`
	Asset             string `json:"asset"`
	Amount            string `json:"amount"`
	PayURL            string `json:"pay_url"`
	MiniAppInvoiceURL string `json:"mini_app_invoice_url,omitempty"`
	WebAppInvoiceURL  string `json:"web_app_invoice_url,omitempty"`
	CreatedAt         string `json:"created_at"`
	ExpirationDate    string `json:"expiration_date"`
	PaidAt            string `json:"paid_at,omitempty"`
}

// Provider-side invoice status values.
const (
	ProviderStatusActive  = "active"
	ProviderStatusPaid    = "paid"
	ProviderStatusExpired = "expired"
)
