package client_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/luma/mrcp/client"
	"github.com/luma/mrcp/metrics"
	"github.com/luma/mrcp/protocol"
	"github.com/luma/mrcp/storage"
	"github.com/luma/mrcp/transport"
)

const channelID = "32AECB23433801@speechrecog"

var _ = Describe("Channel", func() {
	var (
		conn    *fakeConn
		channel *client.Channel
		logs    *observer.ObservedLogs
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)

		conn = newFakeConn()

		var err error
		channel, err = client.NewChannel(channelID, conn, client.WithLogger(zap.New(core)))
		Expect(err).To(Succeed())
	})

	Describe("NewChannel()", func() {
		It("registers the channel with the connection", func() {
			handler, ok := conn.handler(channel.ID())
			Expect(ok).To(BeTrue())
			Expect(handler).To(BeIdenticalTo(channel))
		})

		It("rejects a malformed channel identifier", func() {
			_, err := client.NewChannel("no-resource-type", newFakeConn())
			Expect(errors.Is(err, protocol.ErrInvalidChannelIdentifier)).To(BeTrue())
		})
	})

	Describe("CreateRequest()", func() {
		It("stamps the version, the next request id and the channel identifier", func() {
			first := channel.CreateRequest(protocol.Recognize)
			second := channel.CreateRequest(protocol.Stop)

			Expect(first.Version).To(Equal(protocol.Version))
			Expect(first.Method).To(Equal(protocol.Recognize))
			Expect(first.RequestID).To(Equal(protocol.RequestID(101)))
			Expect(second.RequestID).To(Equal(protocol.RequestID(102)))

			id, ok := first.GetChannelID()
			Expect(ok).To(BeTrue())
			Expect(id.String()).To(Equal(channelID))
			Expect(conn.sentRequests()).To(BeEmpty())
		})

		It("never hands out the same request id twice when called concurrently", func() {
			const (
				workers    = 16
				perWorker  = 200
				totalCount = workers * perWorker
			)

			var (
				mu  sync.Mutex
				ids = make([]int, 0, totalCount)
				wg  sync.WaitGroup
			)

			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					local := make([]int, 0, perWorker)
					last := 0
					for i := 0; i < perWorker; i++ {
						id := int(channel.CreateRequest(protocol.GetParams).RequestID)
						Expect(id).To(BeNumerically(">", last))
						last = id
						local = append(local, id)
					}

					mu.Lock()
					ids = append(ids, local...)
					mu.Unlock()
				}()
			}
			wg.Wait()

			sort.Ints(ids)
			Expect(ids).To(HaveLen(totalCount))
			for i, id := range ids {
				Expect(id).To(Equal(101 + i))
			}
		})
	})

	Describe("SendRequest()", func() {
		It("returns the first response that is not PENDING", func() {
			release := make(chan struct{})
			conn.onSend = func(req *protocol.Request) {
				go func() {
					conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StatePending))
					<-release
					conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StateInProgress))
				}()
			}

			req := channel.CreateRequest(protocol.Recognize)
			result := make(chan *protocol.Response, 1)
			go func() {
				defer GinkgoRecover()

				resp, err := channel.SendRequest(context.Background(), req)
				Expect(err).To(Succeed())
				result <- resp
			}()

			Consistently(result).ShouldNot(Receive())
			close(release)

			var resp *protocol.Response
			Eventually(result).Should(Receive(&resp))
			Expect(resp.RequestID).To(Equal(req.RequestID))
			Expect(resp.State).To(Equal(protocol.StateInProgress))
			Expect(conn.sentRequests()).To(ConsistOf(req))
		})

		It("ignores responses to other requests", func() {
			other := channel.CreateRequest(protocol.Stop)
			conn.onSend = func(req *protocol.Request) {
				conn.deliver(responseTo(other, protocol.StatusSuccess, protocol.StateComplete))
				conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StateComplete))
			}

			req := channel.CreateRequest(protocol.Recognize)
			resp, err := channel.SendRequest(context.Background(), req)
			Expect(err).To(Succeed())
			Expect(resp.RequestID).To(Equal(req.RequestID))
		})

		It("returns an InvocationError carrying a failure response", func() {
			conn.onSend = func(req *protocol.Request) {
				conn.deliver(responseTo(req, protocol.StatusOperationFailed, protocol.StateComplete))
			}

			req := channel.CreateRequest(protocol.DefineGrammar)
			resp, err := channel.SendRequest(context.Background(), req)
			Expect(resp).To(BeNil())

			var invocationErr *client.InvocationError
			Expect(errors.As(err, &invocationErr)).To(BeTrue())
			Expect(invocationErr.Response.StatusCode).To(Equal(407))
			Expect(invocationErr.Response.RequestID).To(Equal(req.RequestID))
			Expect(err.Error()).To(ContainSubstring("Method or operation failed"))
		})

		DescribeTable("treats status codes above 299 as failures",
			func(status int, fails bool) {
				conn.onSend = func(req *protocol.Request) {
					conn.deliver(responseTo(req, status, protocol.StateComplete))
				}

				resp, err := channel.SendRequest(context.Background(), channel.CreateRequest(protocol.SetParams))

				var invocationErr *client.InvocationError
				if fails {
					Expect(errors.As(err, &invocationErr)).To(BeTrue())
					Expect(invocationErr.Response.StatusCode).To(Equal(status))
					Expect(resp).To(BeNil())
					return
				}

				Expect(err).To(Succeed())
				Expect(resp.StatusCode).To(Equal(status))
			},
			Entry("200", 200, false),
			Entry("299", 299, false),
			Entry("300", 300, true),
			Entry("407", 407, true),
		)

		It("returns the context error when the wait is cancelled and stops listening", func() {
			ctx, cancel := context.WithCancel(context.Background())
			conn.onSend = func(req *protocol.Request) {
				cancel()
			}

			req := channel.CreateRequest(protocol.Recognize)
			_, err := channel.SendRequest(ctx, req)
			Expect(err).To(MatchError(context.Canceled))

			conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StateComplete))
			Expect(logs.FilterMessage("No response listeners registered, and yet a response was received").Len()).To(Equal(1))
		})

		It("applies the response timeout when the context has no deadline", func() {
			timed, err := client.NewChannel("abc@speechsynth", conn, client.WithResponseTimeout(20*time.Millisecond))
			Expect(err).To(Succeed())

			_, err = timed.SendRequest(context.Background(), timed.CreateRequest(protocol.Speak))
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})

		It("returns ErrClosed when the connection fails while waiting", func() {
			conn.onSend = func(req *protocol.Request) {
				go conn.fail(errors.New("connection reset by peer"))
			}

			_, err := channel.SendRequest(context.Background(), channel.CreateRequest(protocol.Recognize))
			Expect(errors.Is(err, transport.ErrClosed)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("connection reset by peer"))
		})

		It("returns send errors without waiting", func() {
			conn.sendErr = transport.ErrClosed

			_, err := channel.SendRequest(context.Background(), channel.CreateRequest(protocol.Recognize))
			Expect(err).To(MatchError(transport.ErrClosed))
		})
	})

	Describe("HandleMessage()", func() {
		It("delivers events to every event listener", func() {
			req := channel.CreateRequest(protocol.Recognize)

			var first, second []*protocol.Event
			channel.AddEventListener(client.EventListenerFunc(func(event *protocol.Event) {
				first = append(first, event)
			}))
			channel.AddEventListener(client.EventListenerFunc(func(event *protocol.Event) {
				second = append(second, event)
			}))

			conn.deliver(eventFor(req, protocol.StartOfInput, protocol.StateInProgress))
			conn.deliver(eventFor(req, protocol.RecognitionComplete, protocol.StateComplete))

			Expect(first).To(HaveLen(2))
			Expect(second).To(HaveLen(2))
			Expect(first[1].Name).To(Equal(protocol.RecognitionComplete))
		})

		It("lets a listener remove itself during dispatch without affecting the others", func() {
			req := channel.CreateRequest(protocol.Recognize)

			var (
				selfRemoving int
				others       int
				remove       func()
			)

			remove = channel.AddResponseListener(client.ResponseListenerFunc(func(*protocol.Response) {
				selfRemoving++
				remove()
			}))

			channel.AddResponseListener(client.ResponseListenerFunc(func(*protocol.Response) {
				others++
			}))

			Expect(func() {
				conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StateInProgress))
			}).NotTo(Panic())
			conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StateComplete))

			Expect(selfRemoving).To(Equal(1))
			Expect(others).To(Equal(2))
		})

		It("stops delivering to removed listeners", func() {
			req := channel.CreateRequest(protocol.Speak)

			count := 0
			remove := channel.AddEventListener(client.EventListenerFunc(func(*protocol.Event) {
				count++
			}))

			conn.deliver(eventFor(req, protocol.SpeechMarker, protocol.StateInProgress))
			remove()
			remove()
			conn.deliver(eventFor(req, protocol.SpeakComplete, protocol.StateComplete))

			Expect(count).To(Equal(1))
			Expect(logs.FilterMessage("No event listeners registered, and yet an event was received").Len()).To(Equal(1))
		})

		It("warns about messages that are neither responses nor events", func() {
			channel.HandleMessage(otherMessage{channel.CreateRequest(protocol.Stop)})
			Expect(logs.FilterMessage("Unknown message").Len()).To(Equal(1))
		})
	})

	Describe("Close()", func() {
		It("unregisters the channel and closes the whole connection", func() {
			Expect(channel.Close()).To(Succeed())

			_, ok := conn.handler(channel.ID())
			Expect(ok).To(BeFalse())
			Expect(conn.Done()).To(BeClosed())
		})
	})

	Describe("WithJournal()", func() {
		It("records requests, responses and events", func() {
			journal := storage.NewInmemoryStore()
			defer journal.Close()

			recorded, err := client.NewChannel("abc@speechrecog", conn, client.WithJournal(journal))
			Expect(err).To(Succeed())

			conn.onSend = func(req *protocol.Request) {
				conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StateInProgress))
				conn.deliver(eventFor(req, protocol.RecognitionComplete, protocol.StateComplete))
			}
			recorded.AddEventListener(client.EventListenerFunc(func(*protocol.Event) {}))

			req := recorded.CreateRequest(protocol.Recognize)
			_, err = recorded.SendRequest(context.Background(), req)
			Expect(err).To(Succeed())

			exchange, err := journal.Get(context.Background(), storage.Path("abc@speechrecog", req.RequestID))
			Expect(err).To(Succeed())
			Expect(gjson.GetBytes(exchange, "method").String()).To(Equal("RECOGNIZE"))
			Expect(gjson.GetBytes(exchange, "responses.0.state").String()).To(Equal("IN-PROGRESS"))
			Expect(gjson.GetBytes(exchange, "events.0.name").String()).To(Equal("RECOGNITION-COMPLETE"))
		})
	})
})

var _ = Describe("Channel metrics", func() {
	It("counts traffic and request durations", func() {
		conn := newFakeConn()
		collector := metrics.NewCollector()

		channel, err := client.NewChannel("abc@speechsynth", conn, client.WithMetrics(collector))
		Expect(err).To(Succeed())

		conn.onSend = func(req *protocol.Request) {
			conn.deliver(responseTo(req, protocol.StatusSuccess, protocol.StateComplete))
		}

		_, err = channel.SendRequest(context.Background(), channel.CreateRequest(protocol.Speak))
		Expect(err).To(Succeed())

		Expect(testutil.ToFloat64(collector.Requests.WithLabelValues("abc@speechsynth", "SPEAK"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(collector.Responses.WithLabelValues("abc@speechsynth", "200", "COMPLETE"))).To(Equal(1.0))
		Expect(testutil.CollectAndCount(collector.RequestDuration)).To(Equal(1))
	})
})

// otherMessage is a protocol.Message that is neither a response nor an event.
type otherMessage struct {
	*protocol.Request
}
