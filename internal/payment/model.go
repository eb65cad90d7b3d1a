package payment

import "time"

// BankInfo is what the customer needs to make a manual transfer.
type BankInfo struct {
	BankCode    string `json:"bankCode"`
	AccountNo   string `json:"accountNo"`
	AccountName string `json:"accountName"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
}

// Reference is returned with a newly created prepaid order.
type Reference struct {
	QRCodeURL    string    `json:"qrCodeUrl,omitempty"`
	BankInfo     *BankInfo `json:"bankInfo,omitempty"`
	Instructions []string  `json:"instructions"`
}

// Webhook statuses sent by the payment gateway.
const (
	CallbackPaid    = "PAID"
	CallbackFailed  = "FAILED"
	CallbackExpired = "EXPIRED"
)

const ProviderGateway = "GATEWAY"

type Webhook struct {
	ID          int64
	Provider    string
	EventID     string
	OrderID     string
	Status      string
	ProcessedAt *time.Time
	Error       *string
	CreatedAt   time.Time
}
