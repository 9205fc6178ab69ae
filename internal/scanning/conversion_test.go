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

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img
}

func encodedPNG() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, testImage())).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("toPNG", func() {
	It("passes PNG uploads through", func() {
		data := encodedPNG()
		out, err := toPNG(data, "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(data))
	})

	It("converts JPEG photos", func() {
		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, testImage(), nil)).To(Succeed())

		out, err := toPNG(buf.Bytes(), "image/jpeg")
		Expect(err).NotTo(HaveOccurred())

		img, format, err := image.Decode(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("png"))
		Expect(img.Bounds().Dx()).To(Equal(4))
	})

	It("rejects unknown formats", func() {
		_, err := toPNG([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ContainSubstring("unsupported image format")))
	})
})

var _ = Describe("isHEIC", func() {
	It("trusts the declared type", func() {
		Expect(isHEIC(nil, "image/heic")).To(BeTrue())
	})

	It("reads the ftyp brand", func() {
		data := append([]byte{0, 0, 0, 24}, []byte("ftypheic0000")...)
		Expect(isHEIC(data, "application/octet-stream")).To(BeTrue())
	})

	It("ignores other files", func() {
		Expect(isHEIC(encodedPNG(), "image/png")).To(BeFalse())
	})
})
