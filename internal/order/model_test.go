package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress_Complete(t *testing.T) {
	full := Address{ReceiverName: "An", Phone: "0900000000", Line1: "1 Le Loi", Province: "HCM"}
	assert.True(t, full.Complete())

	for name, blank := range map[string]func(*Address){
		"receiver": func(a *Address) { a.ReceiverName = "" },
		"phone":    func(a *Address) { a.Phone = " " },
		"line1":    func(a *Address) { a.Line1 = "" },
		"province": func(a *Address) { a.Province = "\t" },
	} {
		t.Run(name, func(t *testing.T) {
			a := full
			blank(&a)
			assert.False(t, a.Complete())
		})
	}
}
