package extraction

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg" // Register JPEG decoder for output checks
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// pngImage renders a width x height PNG
func pngImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("prepareImage", func() {
	When("the source is a typical capture", func() {
		It("resizes it within the standard bound and re-encodes as JPEG", func() {
			out, err := prepareImage(pngImage(2000, 1000), "image/png")
			Expect(err).NotTo(HaveOccurred())

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("jpeg"))
			Expect(cfg.Width).To(Equal(1600))
			Expect(cfg.Height).To(Equal(800))
		})
	})

	When("the source fits within the bound", func() {
		It("keeps the dimensions", func() {
			out, err := prepareImage(pngImage(800, 1200), "image/png")
			Expect(err).NotTo(HaveOccurred())

			cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(800))
			Expect(cfg.Height).To(Equal(1200))
		})
	})

	When("the source is unusually small", func() {
		It("takes the aggressive path without upscaling", func() {
			out, err := prepareImage(pngImage(100, 80), "image/png")
			Expect(err).NotTo(HaveOccurred())

			cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(100))
			Expect(cfg.Height).To(Equal(80))
		})
	})

	When("the source is unusually large", func() {
		It("applies the tighter aggressive bound", func() {
			out, err := prepareImage(pngImage(4200, 420), "image/png")
			Expect(err).NotTo(HaveOccurred())

			cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(1280))
			Expect(cfg.Height).To(Equal(128))
		})
	})

	When("the content type is missing", func() {
		It("still decodes by sniffing the format", func() {
			_, err := prepareImage(pngImage(100, 100), "")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the data is not an image", func() {
		It("returns a decode error", func() {
			_, err := prepareImage([]byte("definitely not pixels"), "image/jpeg")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("recognizes the heic brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
		data = append(data, make([]byte, 8)...)
		Expect(isHEICFormat(data)).To(BeTrue())
	})

	It("rejects other containers", func() {
		Expect(isHEICFormat([]byte("\x89PNG\r\n\x1a\nxxxxxxxx"))).To(BeFalse())
	})

	It("rejects short data", func() {
		Expect(isHEICFormat([]byte("ftyp"))).To(BeFalse())
	})
})
