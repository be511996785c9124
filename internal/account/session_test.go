package account

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Sessions", func() {
	var sessions *Sessions

	BeforeEach(func() {
		sessions = NewSessions(time.Hour)
	})

	AfterEach(func() {
		sessions.Close()
	})

	Describe("Create", func() {
		It("should return an anonymous session with a unique id", func() {
			a := sessions.Create()
			b := sessions.Create()
			Expect(a.ID).NotTo(BeEmpty())
			Expect(a.ID).NotTo(Equal(b.ID))
			Expect(a.Username()).To(BeEmpty())
		})
	})

	Describe("Get", func() {
		When("the session exists", func() {
			It("should return the same session", func() {
				created := sessions.Create()
				created.SetUsername("maria")

				found, ok := sessions.Get(created.ID)
				Expect(ok).To(BeTrue())
				Expect(found.Username()).To(Equal("maria"))
			})
		})

		When("the session was deleted", func() {
			It("should report a miss", func() {
				created := sessions.Create()
				sessions.Delete(created.ID)

				_, ok := sessions.Get(created.ID)
				Expect(ok).To(BeFalse())
			})
		})
	})

	Describe("temp values", func() {
		It("should be returned once", func() {
			s := sessions.Create()
			s.PutTemp("ErrorMessage", "nope")

			Expect(s.TakeTemp("ErrorMessage")).To(Equal("nope"))
			Expect(s.TakeTemp("ErrorMessage")).To(BeEmpty())
		})

		It("should be empty when never set", func() {
			s := sessions.Create()
			Expect(s.TakeTemp("ErrorMessage")).To(BeEmpty())
		})
	})

	Describe("uploads", func() {
		It("should remember the type issued for each document", func() {
			s := sessions.Create()
			s.AddUpload("a_scan.pdf", "application/pdf")

			docType, ok := s.Upload("a_scan.pdf")
			Expect(ok).To(BeTrue())
			Expect(docType).To(Equal("application/pdf"))

			_, ok = s.Upload("someone_elses.pdf")
			Expect(ok).To(BeFalse())
		})

		It("should forget removed documents", func() {
			s := sessions.Create()
			s.AddUpload("a_scan.pdf", "application/pdf")
			s.AddUpload("b_scan.png", "image/png")
			s.RemoveUpload("a_scan.pdf")

			Expect(s.Uploads()).To(Equal(map[string]string{"b_scan.png": "image/png"}))
		})

		It("should hand out a copy", func() {
			s := sessions.Create()
			s.AddUpload("a_scan.pdf", "application/pdf")
			s.Uploads()["a_scan.pdf"] = "text/html"

			docType, _ := s.Upload("a_scan.pdf")
			Expect(docType).To(Equal("application/pdf"))
		})
	})
})

var _ = Describe("NewSessionsWithExpiry", func() {
	It("should report sessions that time out", func() {
		expired := make(chan *Session, 1)
		sessions := NewSessionsWithExpiry(10*time.Millisecond, func(s *Session) {
			expired <- s
		})
		defer sessions.Close()

		s := sessions.Create()
		s.AddUpload("a_scan.pdf", "application/pdf")

		Eventually(func() bool {
			_, ok := sessions.Get(s.ID)
			return ok
		}).Should(BeFalse())

		var got *Session
		Eventually(expired).Should(Receive(&got))
		Expect(got.ID).To(Equal(s.ID))
		Expect(got.Uploads()).To(HaveKey("a_scan.pdf"))
	})

	It("should not report deleted sessions", func() {
		expired := make(chan *Session, 1)
		sessions := NewSessionsWithExpiry(10*time.Millisecond, func(s *Session) {
			expired <- s
		})
		defer sessions.Close()

		s := sessions.Create()
		sessions.Delete(s.ID)

		Consistently(expired, 50*time.Millisecond).ShouldNot(Receive())
	})
})
