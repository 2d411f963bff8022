package cmd

import (
	"bytes"
	"context"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/mrcp/client"
	"github.com/luma/mrcp/protocol"
	"github.com/luma/mrcp/storage"
	"github.com/luma/mrcp/transport"
)

// stubConn accepts registrations and swallows requests.
type stubConn struct {
	handler transport.Handler
	done    chan struct{}
}

func (s *stubConn) Send(*protocol.Request) error { return nil }

func (s *stubConn) RegisterHandler(_ protocol.ChannelIdentifier, handler transport.Handler) {
	s.handler = handler
}

func (s *stubConn) UnregisterHandler(protocol.ChannelIdentifier) {}

func (s *stubConn) Close() error { return nil }

func (s *stubConn) Done() <-chan struct{} { return s.done }

func (s *stubConn) Err() error { return nil }

var _ = Describe("send", func() {
	var (
		conn    *stubConn
		channel *client.Channel
	)

	BeforeEach(func() {
		conn = &stubConn{done: make(chan struct{})}

		var err error
		channel, err = client.NewChannel("abc@speechsynth", conn)
		Expect(err).To(Succeed())
	})

	Describe("buildRequest()", func() {
		It("upper-cases the method and parses headers", func() {
			req, err := buildRequest(channel, "speak", []string{"Voice-Name: Ingrid", "kill-on-barge-in:true"})
			Expect(err).To(Succeed())

			Expect(req.Method).To(Equal(protocol.Speak))

			voice, ok := req.GetHeader(protocol.VoiceName)
			Expect(ok).To(BeTrue())
			Expect(voice.Value()).To(Equal("Ingrid"))

			bargeIn, ok := req.GetHeader(protocol.KillOnBargeIn)
			Expect(ok).To(BeTrue())
			Expect(bargeIn.Value()).To(Equal(true))
		})

		It("rejects lines without a header name", func() {
			_, err := buildRequest(channel, "speak", []string{": Ingrid"})
			Expect(err).To(MatchError(ContainSubstring("expected 'Name: value'")))
		})

		It("rejects illegal header values", func() {
			_, err := buildRequest(channel, "speak", []string{"Kill-On-Barge-In: sometimes"})
			Expect(err).To(MatchError(protocol.ErrIllegalValue))
		})
	})

	Describe("attachBody()", func() {
		AfterEach(func() {
			sendFlags.content = ""
			sendFlags.bodyFile = ""
			sendFlags.contentType = "text/plain"
		})

		It("reads the body from stdin", func() {
			sendFlags.bodyFile = "-"
			sendFlags.contentType = "application/ssml+xml"

			req := channel.CreateRequest(protocol.Speak)
			Expect(attachBody(strings.NewReader("<speak>hej</speak>"), req)).To(Succeed())

			Expect(req.Content).To(Equal("<speak>hej</speak>"))
			length, err := req.ContentLength()
			Expect(err).To(Succeed())
			Expect(length).To(Equal(18))
		})

		It("leaves requests without a body alone", func() {
			req := channel.CreateRequest(protocol.Stop)
			Expect(attachBody(strings.NewReader(""), req)).To(Succeed())

			_, ok := req.GetHeader(protocol.ContentLength)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("awaitEvent()", func() {
		It("waits for the named event to complete", func() {
			req := channel.CreateRequest(protocol.Speak)
			completed := awaitEvent(channel, req.RequestID, protocol.SpeakComplete)

			deliver := func(name protocol.EventName, id protocol.RequestID, state protocol.RequestState) {
				event := protocol.NewEvent(name, id, state)
				conn.handler.HandleMessage(event)
			}

			deliver(protocol.SpeechMarker, req.RequestID, protocol.StateInProgress)
			deliver(protocol.SpeakComplete, req.RequestID+1, protocol.StateComplete)
			Consistently(completed).ShouldNot(Receive())

			deliver(protocol.SpeakComplete, req.RequestID, protocol.StateComplete)
			Eventually(completed).Should(Receive())
		})
	})

	Describe("printJournal()", func() {
		It("prints the journal as indented JSON", func() {
			journal := storage.NewInmemoryStore()
			defer journal.Close()

			Expect(journal.Set(context.Background(), []byte("foo"), "bar")).To(Succeed())

			var out bytes.Buffer
			Expect(printJournal(&out, journal)).To(Succeed())
			Expect(out.String()).To(HavePrefix("{\n"))
			Expect(out.String()).To(ContainSubstring(`  "foo": "bar"`))
		})
	})
})
