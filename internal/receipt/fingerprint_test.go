package receipt

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func f(v float64) *float64 { return &v }

func sampleReceipt() *Normalized {
	return &Normalized{
		StoreCategory: "Groceries",
		StoreName:     "Lidl",
		Date:          "2024-03-15",
		Total:         f(42.75),
		TaxAmount:     f(3.10),
		Items: []Item{
			{Name: "Organic apples", Quantity: f(2), Price: f(1.99), Category: "Groceries", Total: f(3.98)},
			{Name: "Milk", Quantity: f(1), Price: f(1.09), Category: "Groceries", Total: f(1.09)},
		},
	}
}

var _ = Describe("Fingerprint", func() {
	It("is deterministic for identical content", func() {
		Expect(Fingerprint(sampleReceipt())).To(Equal(Fingerprint(sampleReceipt())))
	})

	It("is a 64-character hex digest", func() {
		Expect(Fingerprint(sampleReceipt())).To(MatchRegexp(`^[0-9a-f]{64}$`))
	})

	It("changes when a content field changes", func() {
		a := sampleReceipt()
		b := sampleReceipt()
		b.Total = f(42.76)
		Expect(Fingerprint(a)).NotTo(Equal(Fingerprint(b)))
	})

	It("changes when item order changes", func() {
		a := sampleReceipt()
		b := sampleReceipt()
		b.Items[0], b.Items[1] = b.Items[1], b.Items[0]
		Expect(Fingerprint(a)).NotTo(Equal(Fingerprint(b)))
	})

	It("distinguishes null from zero amounts", func() {
		a := sampleReceipt()
		b := sampleReceipt()
		b.TaxAmount = nil
		Expect(Fingerprint(a)).NotTo(Equal(Fingerprint(b)))
	})
})
