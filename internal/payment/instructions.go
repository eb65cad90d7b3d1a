package payment

import (
	"strings"

	"storefront-orderflow/internal/order"
)

var InstructionMap = map[order.PaymentMethod][]string{
	order.PaymentCOD: {
		"Your order will be delivered to the shipping address",
		"Prepare {{amount}} in cash when the courier arrives",
		"Pay the courier directly and keep the receipt",
	},
	order.PaymentBank: {
		"Open your banking app and choose Scan QR or Transfer",
		"Transfer {{amount}} to account {{account_no}} ({{bank_code}})",
		"Use {{reference}} as the transfer note so we can match your payment",
		"The order is confirmed automatically once the transfer is received",
	},
	order.PaymentGateway: {
		"Complete the payment on the gateway page",
		"Make sure the amount shown is {{amount}}",
		"You will be redirected back once the payment succeeds",
	},
}

func GetInstructions(method order.PaymentMethod) []string {
	if steps, ok := InstructionMap[method]; ok {
		return steps
	}

	return []string{
		"Follow the payment instructions shown on this page",
	}
}

type InstructionVars map[string]string

func InjectVariables(steps []string, vars InstructionVars) []string {
	result := make([]string, 0, len(steps))

	for _, step := range steps {
		updated := step
		for key, value := range vars {
			updated = strings.ReplaceAll(updated, "{{"+key+"}}", value)
		}
		result = append(result, updated)
	}

	return result
}
