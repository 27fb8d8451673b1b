package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// testImage returns a small valid PNG capture
func testImage() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

// chatBody wraps model output in a chat-completions response
func chatBody(content string) []byte {
	body, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	Expect(err).NotTo(HaveOccurred())
	return body
}

const validReceiptJSON = `{
	"store_category": "Groceries",
	"store_name": "Lidl",
	"date": "2024-03-15",
	"total": 10.50,
	"items": [{"name": "Milk", "quantity": 1, "price": 1.09}]
}`

var _ = Describe("ChatExtractor", func() {
	var (
		server    *ghttp.Server
		extractor *ChatExtractor
		delays    []time.Duration
		calls     int32
		ctx       context.Context
		err       error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		delays = nil
		calls = 0
		ctx = context.Background()

		extractor, err = NewChatExtractor(server.URL(), "test-key", "test-model", Policy{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			Sleep: func(d time.Duration) {
				delays = append(delays, d)
			},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an api key", func() {
		_, err := NewChatExtractor("", "", "", Policy{})
		Expect(err).To(HaveOccurred())
	})

	When("the service responds on the first attempt", func() {
		BeforeEach(func() {
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Write(chatBody(validReceiptJSON))
			})
		})

		It("returns the normalized receipt without retrying", func() {
			result, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.StoreName).To(Equal("Lidl"))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
			Expect(delays).To(BeEmpty())
		})

		It("authenticates with the service", func() {
			var gotAuth string
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.Write(chatBody(validReceiptJSON))
			})

			_, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotAuth).To(Equal("Bearer test-key"))
		})
	})

	When("the service fails transiently before succeeding", func() {
		BeforeEach(func() {
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				switch atomic.AddInt32(&calls, 1) {
				case 1:
					w.WriteHeader(http.StatusServiceUnavailable)
				case 2:
					w.WriteHeader(http.StatusTooManyRequests)
				default:
					w.Write(chatBody(validReceiptJSON))
				}
			})
		})

		It("retries with exponential backoff", func() {
			result, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).NotTo(BeNil())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
			Expect(delays).To(Equal([]time.Duration{
				100 * time.Millisecond,
				200 * time.Millisecond,
			}))
		})
	})

	When("the service keeps failing", func() {
		BeforeEach(func() {
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusInternalServerError)
			})
		})

		It("stops after the configured number of attempts", func() {
			_, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).To(MatchError(ErrUnavailable))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
		})
	})

	When("an attempt times out", func() {
		BeforeEach(func() {
			extractor.timeout = 50 * time.Millisecond
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&calls, 1) == 1 {
					time.Sleep(200 * time.Millisecond)
				}
				w.Write(chatBody(validReceiptJSON))
			})
		})

		It("treats the timeout as transient", func() {
			result, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).NotTo(BeNil())
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(2)))
		})
	})

	When("the service rejects our credentials", func() {
		BeforeEach(func() {
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(http.StatusUnauthorized)
			})
		})

		It("fails immediately without retrying", func() {
			_, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).To(MatchError(ErrProviderAuth))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
			Expect(delays).To(BeEmpty())
		})
	})

	When("the service returns a validation-breaking payload", func() {
		BeforeEach(func() {
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Write(chatBody(`{"date": "2024-03-15", "total": null, "items": []}`))
			})
		})

		It("fails with invalid receipt and does not retry", func() {
			_, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).To(MatchError(ErrInvalidReceipt))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})
	})

	When("the service flags a non-receipt image", func() {
		BeforeEach(func() {
			server.RouteToHandler("POST", "/chat/completions", func(w http.ResponseWriter, r *http.Request) {
				w.Write(chatBody(`{"error": "Image does not appear to be a receipt."}`))
			})
		})

		It("returns nil without an error", func() {
			result, err := extractor.Extract(ctx, testImage(), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeNil())
		})
	})

	When("the image cannot be decoded", func() {
		It("fails without calling the service", func() {
			_, err := extractor.Extract(ctx, []byte("not an image"), "image/png")
			Expect(err).To(HaveOccurred())
			Expect(server.ReceivedRequests()).To(BeEmpty())
		})
	})
})
