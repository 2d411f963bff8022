package protocol_test

import (
	"bufio"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/luma/mrcp/protocol"
)

var _ = Describe("Parsing", func() {
	decoderFor := func(data string) *protocol.Decoder {
		return protocol.NewDecoder(strings.NewReader(data), nil)
	}

	Describe("Decode()", func() {
		It("decodes a response", func() {
			msg, err := decoderFor("MRCP/2.0 86 543257 200 COMPLETE\r\n" +
				"Channel-Identifier: 32AECB23433801@speechrecog\r\n" +
				"\r\n").Decode()
			Expect(err).To(Succeed())

			resp, ok := msg.(*protocol.Response)
			Expect(ok).To(BeTrue())
			Expect(resp.Version).To(Equal("MRCP/2.0"))
			Expect(resp.Length).To(Equal(86))
			Expect(resp.RequestID).To(Equal(protocol.RequestID(543257)))
			Expect(resp.StatusCode).To(Equal(200))
			Expect(resp.State).To(Equal(protocol.StateComplete))
			Expect(resp.Content).To(BeEmpty())

			channelID, ok := resp.GetChannelID()
			Expect(ok).To(BeTrue())
			Expect(channelID).To(Equal(protocol.ChannelIdentifier{
				SessionID: "32AECB23433801",
				Resource:  protocol.ResourceSpeechRecog,
			}))
		})

		It("decodes an event with content", func() {
			msg, err := decoderFor("MRCP/2.0 250 RECOGNITION-COMPLETE 543257 COMPLETE\r\n" +
				"Channel-Identifier: 32AECB23433801@speechrecog\r\n" +
				"Completion-Cause: 000 success\r\n" +
				"Content-Type: application/nlsml+xml\r\n" +
				"Content-Length: 9\r\n" +
				"\r\n" +
				"<result/>").Decode()
			Expect(err).To(Succeed())

			event, ok := msg.(*protocol.Event)
			Expect(ok).To(BeTrue())
			Expect(event.Name).To(Equal(protocol.RecognitionComplete))
			Expect(event.RequestID).To(Equal(protocol.RequestID(543257)))
			Expect(event.State).To(Equal(protocol.StateComplete))
			Expect(event.Content).To(Equal("<result/>"))

			cause, ok := event.GetHeader(protocol.CompletionCauseHeader)
			Expect(ok).To(BeTrue())
			Expect(cause.Value()).To(Equal(protocol.CompletionCause{Code: 0, Name: "success"}))
		})

		It("decodes request ids beyond 32 bits", func() {
			msg, err := decoderFor("MRCP/2.0 50 4294967296 200 COMPLETE\r\n\r\n").Decode()
			Expect(err).To(Succeed())

			resp, ok := msg.(*protocol.Response)
			Expect(ok).To(BeTrue())
			Expect(resp.RequestID).To(Equal(protocol.RequestID(4294967296)))
		})

		It("skips blank lines before the start-line", func() {
			msg, err := decoderFor("\r\n  \r\n\r\nMRCP/2.0 50 101 200 IN-PROGRESS\r\n\r\n").Decode()
			Expect(err).To(Succeed())
			Expect(msg.GetRequestID()).To(Equal(protocol.RequestID(101)))
		})

		It("decodes consecutive messages from the same stream", func() {
			decoder := decoderFor("MRCP/2.0 50 101 200 IN-PROGRESS\r\n\r\n" +
				"MRCP/2.0 50 START-OF-INPUT 101 IN-PROGRESS\r\n\r\n" +
				"MRCP/2.0 50 101 201 COMPLETE\r\n\r\n")

			first, err := decoder.Decode()
			Expect(err).To(Succeed())
			Expect(first).To(BeAssignableToTypeOf(&protocol.Response{}))

			second, err := decoder.Decode()
			Expect(err).To(Succeed())
			Expect(second).To(BeAssignableToTypeOf(&protocol.Event{}))

			third, err := decoder.Decode()
			Expect(err).To(Succeed())
			Expect(third.(*protocol.Response).StatusCode).To(Equal(protocol.StatusSuccessSomeOptionalHeadersIgnored))

			_, err = decoder.Decode()
			Expect(err).To(MatchError(io.EOF))
		})

		It("returns io.EOF if the stream ends before a start-line", func() {
			_, err := decoderFor("\r\n").Decode()
			Expect(err).To(MatchError(io.EOF))
		})

		DescribeTable("rejects start-lines without exactly five parts",
			func(line string) {
				msg, err := decoderFor(line + "\r\n\r\n").Decode()
				Expect(msg).To(BeNil())
				Expect(errors.Is(err, protocol.ErrStartLinePartCount)).To(BeTrue())
				Expect(errors.Is(err, protocol.ErrParse)).To(BeTrue())
			},
			Entry("four parts", "MRCP/2.0 50 101 200"),
			Entry("six parts", "MRCP/2.0 50 101 200 COMPLETE extra"),
			Entry("double space", "MRCP/2.0 50  101 200 COMPLETE"),
			Entry("one part", "garbage"),
		)

		It("rejects an unknown request-state", func() {
			_, err := decoderFor("MRCP/2.0 50 101 200 DONE\r\n\r\n").Decode()
			Expect(errors.Is(err, protocol.ErrUnknownRequestState)).To(BeTrue())
			Expect(errors.Is(err, protocol.ErrParse)).To(BeTrue())
		})

		It("rejects a malformed status-code", func() {
			_, err := decoderFor("MRCP/2.0 50 101 20 COMPLETE\r\n\r\n").Decode()
			Expect(errors.Is(err, protocol.ErrMalformedStartLine)).To(BeTrue())
		})

		DescribeTable("rejects headers without a name before the colon",
			func(header string) {
				msg, err := decoderFor("MRCP/2.0 50 101 200 COMPLETE\r\n" + header + "\r\n\r\n").Decode()
				Expect(msg).To(BeNil())
				Expect(errors.Is(err, protocol.ErrMalformedHeader)).To(BeTrue())
			},
			Entry("no colon", "Channel-Identifier 32AECB23433801@speechrecog"),
			Entry("leading colon", ": 32AECB23433801@speechrecog"),
		)

		It("returns an IllegalValueError for a header value that does not parse", func() {
			_, err := decoderFor("MRCP/2.0 50 101 200 COMPLETE\r\nContent-Length: lots\r\n\r\n").Decode()
			Expect(errors.Is(err, protocol.ErrIllegalValue)).To(BeTrue())

			var illegal *protocol.IllegalValueError
			Expect(errors.As(err, &illegal)).To(BeTrue())
			Expect(illegal.Header).To(Equal(protocol.ContentLength))
			Expect(illegal.Value).To(Equal("lots"))
		})

		It("returns io.ErrUnexpectedEOF if the stream ends inside the headers", func() {
			_, err := decoderFor("MRCP/2.0 50 101 200 COMPLETE\r\nChannel-Identifier: a@b\r\n").Decode()
			Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
		})

		Describe("content", func() {
			It("counts Content-Length in bytes, not runes", func() {
				// "héllo wörld" is 11 runes and 13 bytes
				decoder := decoderFor("MRCP/2.0 50 SPEECH-MARKER 101 IN-PROGRESS\r\n" +
					"Content-Length: 13\r\n\r\n" +
					"héllo wörld" +
					"MRCP/2.0 50 101 200 COMPLETE\r\n\r\n")

				msg, err := decoder.Decode()
				Expect(err).To(Succeed())
				Expect(msg.GetContent()).To(Equal("héllo wörld"))

				next, err := decoder.Decode()
				Expect(err).To(Succeed())
				Expect(next.GetRequestID()).To(Equal(protocol.RequestID(101)))
			})

			It("returns io.ErrUnexpectedEOF if the stream ends before the content is read", func() {
				_, err := decoderFor("MRCP/2.0 50 101 200 COMPLETE\r\n" +
					"Content-Length: 20\r\n\r\n" +
					"too short").Decode()
				Expect(errors.Is(err, io.ErrUnexpectedEOF)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("11 bytes remaining"))
			})

			It("logs, but tolerates, a length that ends inside a multi-byte rune", func() {
				core, logs := observer.New(zapcore.WarnLevel)
				decoder := protocol.NewDecoder(strings.NewReader("MRCP/2.0 50 101 200 COMPLETE\r\n"+
					"Content-Length: 2\r\n\r\n"+
					"aé"), zap.New(core))

				msg, err := decoder.Decode()
				Expect(err).To(Succeed())
				Expect(msg.GetContent()).To(Equal("aé"))
				Expect(logs.FilterMessage("Read more content bytes than Content-Length declared").Len()).To(Equal(1))
			})

			It("rejects a Content-Length above the limit", func() {
				decoder := decoderFor("MRCP/2.0 50 101 200 COMPLETE\r\nContent-Length: 100\r\n\r\n")
				decoder.MaxContentLength = 10

				_, err := decoder.Decode()
				Expect(errors.Is(err, protocol.ErrContentTooLarge)).To(BeTrue())
			})
		})
	})

	Describe("DecodeRequest()", func() {
		It("parses a request start-line", func() {
			req, err := decoderFor("MRCP/2.0 73 SPEAK 101\r\n" +
				"Channel-Identifier: 32AECB23433801@speechsynth\r\n\r\n").DecodeRequest()
			Expect(err).To(Succeed())
			Expect(req.Method).To(Equal(protocol.Speak))
			Expect(req.RequestID).To(Equal(protocol.RequestID(101)))
			Expect(req.Length).To(Equal(73))
		})

		It("rejects a response start-line", func() {
			_, err := decoderFor("MRCP/2.0 50 101 200 COMPLETE\r\n\r\n").DecodeRequest()
			Expect(errors.Is(err, protocol.ErrStartLinePartCount)).To(BeTrue())
		})
	})

	Describe("ReadMessage()", func() {
		It("shares buffered bytes when given a *bufio.Reader", func() {
			r := bufio.NewReader(strings.NewReader("MRCP/2.0 50 101 200 IN-PROGRESS\r\n\r\n" +
				"MRCP/2.0 50 101 200 COMPLETE\r\n\r\n"))

			first, err := protocol.ReadMessage(r)
			Expect(err).To(Succeed())
			Expect(first.(*protocol.Response).State).To(Equal(protocol.StateInProgress))

			second, err := protocol.ReadMessage(r)
			Expect(err).To(Succeed())
			Expect(second.(*protocol.Response).State).To(Equal(protocol.StateComplete))
		})
	})
})
