package scanning

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func fixtureImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	return img
}

func pngFixture() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, fixtureImage())).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("toPNG", func() {
	When("the document is a PNG", func() {
		It("should pass it through unchanged", func() {
			data := pngFixture()
			out, err := toPNG(data, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(data))
		})
	})

	When("the bytes only claim to be a PNG", func() {
		It("should reject them", func() {
			_, err := toPNG([]byte("\x89PNG but not really"), "image/png")
			Expect(err).To(MatchError(ContainSubstring("decoding PNG")))
		})

		It("should reject markup labelled as PNG", func() {
			_, err := toPNG([]byte("<html><script>alert(1)</script></html>"), "IMAGE/PNG")
			Expect(err).To(HaveOccurred())
		})
	})

	When("the document is a JPEG", func() {
		It("should convert it to PNG", func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, fixtureImage(), nil)).To(Succeed())

			out, err := toPNG(buf.Bytes(), "image/jpeg")
			Expect(err).NotTo(HaveOccurred())
			cfg, err := png.DecodeConfig(bytes.NewReader(out))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Width).To(Equal(4))
		})
	})

	When("the document is not an image", func() {
		It("should return an error", func() {
			_, err := toPNG([]byte("plain text"), "text/plain")
			Expect(err).To(MatchError(ContainSubstring("unsupported document")))
		})
	})
})

var _ = Describe("isHEIC", func() {
	It("should trust a HEIC MIME type", func() {
		Expect(isHEIC(nil, "image/heic")).To(BeTrue())
	})

	It("should recognise the ftyp brand", func() {
		Expect(isHEIC([]byte("\x00\x00\x00\x18ftypheic0000"), "")).To(BeTrue())
		Expect(isHEIC([]byte("\x00\x00\x00\x18ftypisom0000"), "")).To(BeFalse())
	})
})
