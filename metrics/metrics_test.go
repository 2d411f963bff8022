package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/luma/mrcp/metrics"
	"github.com/luma/mrcp/protocol"
)

var _ = Describe("Collector", func() {
	const channelID = "abc@speechrecog"

	var collector *metrics.Collector

	BeforeEach(func() {
		collector = metrics.NewCollector()
	})

	It("counts requests, responses and events", func() {
		collector.Observe(channelID, protocol.NewRequest(protocol.Recognize))
		collector.Observe(channelID, protocol.NewRequest(protocol.Recognize))
		collector.Observe(channelID, protocol.NewResponse(101, protocol.StatusSuccess, protocol.StateInProgress))
		collector.Observe(channelID, protocol.NewEvent(protocol.StartOfInput, 101, protocol.StateInProgress))

		Expect(testutil.ToFloat64(collector.Requests.WithLabelValues(channelID, "RECOGNIZE"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(collector.Responses.WithLabelValues(channelID, "200", "IN-PROGRESS"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(collector.Events.WithLabelValues(channelID, "START-OF-INPUT", "IN-PROGRESS"))).To(Equal(1.0))
	})

	It("records request durations", func() {
		collector.ObserveDuration(channelID, protocol.Speak, 200, 30*time.Millisecond)
		Expect(testutil.CollectAndCount(collector.RequestDuration)).To(Equal(1))
	})

	It("registers with a registry once", func() {
		registry := prometheus.NewRegistry()
		Expect(collector.Register(registry)).To(Succeed())
		Expect(collector.Register(registry)).NotTo(Succeed())
	})
})
