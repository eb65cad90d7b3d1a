package payment

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"storefront-orderflow/internal/config"
	"storefront-orderflow/internal/order"
)

const qrBaseURL = "https://img.vietqr.io/image"

// Bank builds transfer references for BANK orders.
type Bank struct {
	code        string
	accountNo   string
	accountName string
}

func NewBank(cfg *config.Config) *Bank {
	return &Bank{
		code:        cfg.BankCode,
		accountNo:   cfg.BankAccountNo,
		accountName: cfg.BankAccountName,
	}
}

// TransferReference is the note a customer must put on the transfer.
func TransferReference(orderID string) string {
	ref := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(ref) > 12 {
		ref = ref[:12]
	}
	return "ORD" + ref
}

// ReferenceFor returns payment details for a freshly created order. Only
// BANK orders carry a QR code and bank info.
func (b *Bank) ReferenceFor(o *order.Order) *Reference {
	vars := InstructionVars{"amount": FormatAmount(o.TotalAmount)}
	ref := &Reference{}

	if o.PaymentMethod == order.PaymentBank {
		info := &BankInfo{
			BankCode:    b.code,
			AccountNo:   b.accountNo,
			AccountName: b.accountName,
			Amount:      o.TotalAmount,
			Reference:   TransferReference(o.ID),
		}
		ref.BankInfo = info
		ref.QRCodeURL = b.qrURL(info)

		vars["account_no"] = info.AccountNo
		vars["bank_code"] = info.BankCode
		vars["reference"] = info.Reference
	}

	ref.Instructions = InjectVariables(GetInstructions(o.PaymentMethod), vars)
	return ref
}

func (b *Bank) qrURL(info *BankInfo) string {
	q := url.Values{}
	q.Set("amount", strconv.FormatInt(info.Amount, 10))
	q.Set("addInfo", info.Reference)
	q.Set("accountName", info.AccountName)
	return fmt.Sprintf("%s/%s-%s-compact2.png?%s", qrBaseURL, info.BankCode, info.AccountNo, q.Encode())
}

// FormatAmount renders an amount with dot thousand separators.
func FormatAmount(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
