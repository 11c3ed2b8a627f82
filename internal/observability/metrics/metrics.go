package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every metric series.
type Config struct {
	ServiceName string
	Environment string
}

// BillingMetrics exposes payment and reminder instruments.
type BillingMetrics struct {
	paymentEvents     *prometheus.CounterVec
	invoiceTransition *prometheus.CounterVec
	reminderSends     *prometheus.CounterVec
	reminderErrors    *prometheus.CounterVec
}

var (
	billingMetricsOnce sync.Once
	billingMetrics     *BillingMetrics
)

// Billing returns the singleton billing metrics registry.
func Billing() *BillingMetrics {
	return BillingWithConfig(Config{})
}

// BillingWithConfig returns the singleton billing metrics registry using config labels.
func BillingWithConfig(cfg Config) *BillingMetrics {
	billingMetricsOnce.Do(func() {
		billingMetrics = newBillingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return billingMetrics
}

// ResetBillingMetricsForTest resets the billing metrics singleton for tests.
func ResetBillingMetricsForTest() {
	billingMetricsOnce = sync.Once{}
	billingMetrics = nil
}

func newBillingMetrics(registerer prometheus.Registerer, cfg Config) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "ledgerline"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	paymentEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerline_payment_events_total",
		Help:        "Payment lifecycle events by gateway and outcome.",
		ConstLabels: constLabels,
	}, []string{"gateway", "event_type"})
	invoiceTransition := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerline_invoice_transition_total",
		Help:        "Invoice status transitions to validate ledger lifecycle health.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	reminderSends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerline_reminder_sends_total",
		Help:        "Reminder notifications dispatched by obligation type.",
		ConstLabels: constLabels,
	}, []string{"entity_type"})
	reminderErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ledgerline_reminder_errors_total",
		Help:        "Reminder dispatch failures by obligation type.",
		ConstLabels: constLabels,
	}, []string{"entity_type"})

	registerer.MustRegister(
		paymentEvents,
		invoiceTransition,
		reminderSends,
		reminderErrors,
	)

	return &BillingMetrics{
		paymentEvents:     paymentEvents,
		invoiceTransition: invoiceTransition,
		reminderSends:     reminderSends,
		reminderErrors:    reminderErrors,
	}
}

// RecordPaymentEvent increments payment event counts.
func (m *BillingMetrics) RecordPaymentEvent(gateway, eventType string) {
	if m == nil || m.paymentEvents == nil {
		return
	}
	m.paymentEvents.WithLabelValues(strings.TrimSpace(gateway), strings.TrimSpace(eventType)).Inc()
}

// RecordInvoiceTransition increments invoice transition counts.
func (m *BillingMetrics) RecordInvoiceTransition(from, to string) {
	if m == nil || m.invoiceTransition == nil {
		return
	}
	m.invoiceTransition.WithLabelValues(from, to).Inc()
}

// RecordReminderSend increments reminder dispatch counts.
func (m *BillingMetrics) RecordReminderSend(entityType string) {
	if m == nil || m.reminderSends == nil {
		return
	}
	m.reminderSends.WithLabelValues(strings.TrimSpace(entityType)).Inc()
}

// RecordReminderError increments reminder failure counts.
func (m *BillingMetrics) RecordReminderError(entityType string) {
	if m == nil || m.reminderErrors == nil {
		return
	}
	m.reminderErrors.WithLabelValues(strings.TrimSpace(entityType)).Inc()
}
