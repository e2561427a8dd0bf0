package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"possync/backend/internal/domain"
	"possync/backend/internal/metrics"
)

// Notifier hands events to a Publisher off the request path. Failures are logged and
// counted, never returned.
type Notifier struct {
	pub     Publisher
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewNotifier(pub Publisher, timeout time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *Notifier {
	if pub == nil {
		pub = NoopPublisher{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Notifier{pub: pub, timeout: timeout, logger: logger, metrics: m}
}

func (n *Notifier) Notify(event domain.Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		err := n.pub.Publish(ctx, event)
		n.metrics.EventPublished(event.Type, err)
		if err != nil {
			n.logger.WithError(err).WithFields(logrus.Fields{
				"tenant_id": event.TenantID,
				"type":      event.Type,
			}).Warn("fanout: publish failed")
		}
	}()
}

// Wait blocks until every event handed to Notify has been attempted.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
