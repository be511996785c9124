package invoice

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalDocuments", func() {
	var (
		dir  string
		docs *LocalDocuments
	)

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), "documents")
		var err error
		docs, err = NewLocalDocuments(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create the base directory", func() {
		info, err := os.Stat(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("should save and read back a document", func() {
		name, err := docs.Save("abc_invoice.pdf", []byte("%PDF-1.4"))
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("abc_invoice.pdf"))

		data, err := docs.Get(name)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("%PDF-1.4"))
	})

	It("should delete a document", func() {
		_, err := docs.Save("gone.png", []byte("png"))
		Expect(err).NotTo(HaveOccurred())

		Expect(docs.Delete("gone.png")).To(Succeed())
		_, err = docs.Get("gone.png")
		Expect(err).To(HaveOccurred())
	})

	It("should fail to read a missing document", func() {
		_, err := docs.Get("missing.pdf")
		Expect(err).To(HaveOccurred())
	})

	DescribeTable("rejecting names outside the directory",
		func(name string) {
			_, err := docs.Save(name, []byte("x"))
			Expect(err).To(MatchError(ErrInvalidDocumentName))

			_, err = docs.Get(name)
			Expect(err).To(MatchError(ErrInvalidDocumentName))

			Expect(docs.Delete(name)).To(MatchError(ErrInvalidDocumentName))
		},
		Entry("empty", ""),
		Entry("dot", "."),
		Entry("parent", ".."),
		Entry("relative path", "../secret"),
		Entry("nested path", "a/b.pdf"),
		Entry("windows path", `a\b.pdf`),
	)
})

var _ = Describe("DocumentName", func() {
	It("should keep a cleaned-up original name", func() {
		name := DocumentName("ACME invoice (March).PDF")
		Expect(name).To(HaveSuffix("_ACME invoice March.pdf"))
	})

	It("should be unique per call", func() {
		Expect(DocumentName("a.pdf")).NotTo(Equal(DocumentName("a.pdf")))
	})

	It("should strip directories", func() {
		name := DocumentName("../../etc/passwd")
		Expect(name).To(HaveSuffix("_passwd"))
		Expect(name).NotTo(ContainSubstring("/"))
	})

	It("should fall back to a default base name", func() {
		Expect(DocumentName("€€€.png")).To(HaveSuffix("_invoice.png"))
	})

	It("should cap the base name length", func() {
		name := DocumentName(strings.Repeat("a", 80) + ".jpg")
		parts := strings.SplitN(name, "_", 2)
		Expect(parts[1]).To(Equal(strings.Repeat("a", 50) + ".jpg"))
	})

	It("should produce names the document store accepts", func() {
		docs, err := NewLocalDocuments(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		_, err = docs.Save(DocumentName(`C:\scans\..\bill.heic`), []byte("x"))
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("DetectDocumentType", func() {
	DescribeTable("sniffing the content",
		func(data string, expected string) {
			Expect(DetectDocumentType([]byte(data))).To(Equal(expected))
		},
		Entry("PDF", "%PDF-1.7\n%\xe2\xe3\xcf\xd3\n", "application/pdf"),
		Entry("PNG", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", "image/png"),
		Entry("JPEG", "\xff\xd8\xff\xe0\x00\x10JFIF\x00", "image/jpeg"),
		Entry("GIF", "GIF89a\x01\x00\x01\x00", "image/gif"),
		Entry("HEIC", "\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic", "image/heic"),
		Entry("HEIF", "\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00mif1heic", "image/heif"),
		Entry("HTML", "<html><body><script>alert(document.cookie)</script></body></html>", ""),
		Entry("SVG", `<svg xmlns="http://www.w3.org/2000/svg" onload="alert(1)"></svg>`, ""),
		Entry("plain text", "just some notes", ""),
		Entry("empty", "", ""),
	)
})

var _ = Describe("IsAllowedDocumentType", func() {
	It("should accept the invoice document types", func() {
		Expect(IsAllowedDocumentType("application/pdf")).To(BeTrue())
		Expect(IsAllowedDocumentType("image/heif")).To(BeTrue())
	})

	It("should refuse anything a browser could run", func() {
		Expect(IsAllowedDocumentType("text/html")).To(BeFalse())
		Expect(IsAllowedDocumentType("image/svg+xml")).To(BeFalse())
		Expect(IsAllowedDocumentType("")).To(BeFalse())
	})
})
