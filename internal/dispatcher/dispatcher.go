// Package dispatcher fans upstream events out to subscribed chats.
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-coin/mintviewer/internal/gifts"
	"github.com/core-coin/mintviewer/internal/metrics"
	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/internal/registry"
	"github.com/core-coin/mintviewer/pkg/logger"
)

const (
	DefaultConcurrency = 16
	DefaultSendTimeout = 10 * time.Second
)

// Options configures a Dispatcher.
type Options struct {
	// Groups are the channels a recipient must be a member of.
	Groups []string
	// Concurrency bounds the number of recipients served at once.
	Concurrency int
	// SendTimeout bounds every membership check and send.
	SendTimeout time.Duration
}

// Dispatcher delivers events to every active recipient whose filter matches
// and who is still a member of all required groups.
type Dispatcher struct {
	logger   *logger.Logger
	registry *registry.Registry
	sender   models.MessageSender
	checker  models.EligibilityChecker
	metrics  *metrics.Collector

	groups      []string
	concurrency int
	sendTimeout time.Duration
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(
	registry *registry.Registry,
	sender models.MessageSender,
	checker models.EligibilityChecker,
	metrics *metrics.Collector,
	logger *logger.Logger,
	opts Options,
) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{
		logger:      logger,
		registry:    registry,
		sender:      sender,
		checker:     checker,
		metrics:     metrics,
		groups:      opts.Groups,
		concurrency: opts.Concurrency,
		sendTimeout: opts.SendTimeout,
	}
}

// ResubscribeNotice is sent once to a recipient that left a required group.
func ResubscribeNotice(groups []string) string {
	return fmt.Sprintf("Вы отписаны от одного из обязательных каналов (%s).\n"+
		"Подпишитесь, чтобы продолжить получать уведомления.", strings.Join(groups, " или "))
}

// Dispatch delivers event to the current active set. It returns once every
// delivery has finished; failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event models.Event) {
	if event.Kind != models.EventNewMint {
		return
	}
	start := time.Now()
	text := event.String()
	d.logger.Infow("Dispatching notification", "slug", event.Slug, "gift", event.GiftName)

	recipients := d.registry.ActiveSnapshot()

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, id := range recipients {
		if !gifts.Matches(event.GiftNameNormalized, d.registry.Filter(id)) {
			d.metrics.RecordDelivery(metrics.OutcomeFiltered)
			continue
		}
		id := id
		g.Go(func() error {
			d.safeCall(func() { d.deliver(ctx, id, text) }, id)
			return nil
		})
	}
	_ = g.Wait()

	d.metrics.RecordDispatchDuration(time.Since(start))
	d.logger.Debugw("Dispatch finished", "slug", event.Slug, "recipients", len(recipients), "took", time.Since(start))
}

func (d *Dispatcher) deliver(ctx context.Context, id models.RecipientID, text string) {
	left := false
	for _, group := range d.groups {
		status, err := d.memberStatus(ctx, id, group)
		if err != nil {
			d.metrics.RecordDelivery(metrics.OutcomeCheckFailed)
			d.logger.Errorw("Failed to check channel membership, skipping", "chat_id", id, "error", err)
			return
		}
		if status.HasLeft() {
			left = true
		}
	}

	if left {
		d.metrics.RecordDelivery(metrics.OutcomeIneligible)
		// Only the call that actually removed the recipient sends the notice.
		if !d.registry.Deactivate(id) {
			return
		}
		d.logger.Infow("Recipient left a required channel, notifications disabled", "chat_id", id)
		if err := d.send(ctx, id, ResubscribeNotice(d.groups)); err != nil {
			d.logger.Errorw("Failed to send resubscribe notice", "chat_id", id, "error", err)
		}
		return
	}

	if err := d.send(ctx, id, text); err != nil {
		d.metrics.RecordDelivery(metrics.OutcomeDeliveryError)
		d.logger.Errorw("Failed to send notification", "chat_id", id, "error", err)
		return
	}
	d.metrics.RecordDelivery(metrics.OutcomeSent)
	d.logger.Debugw("Notification sent", "chat_id", id)
}

func (d *Dispatcher) memberStatus(ctx context.Context, id models.RecipientID, group string) (models.MemberStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	status, err := d.checker.MemberStatus(ctx, id, group)
	if err != nil {
		return "", &models.EligibilityCheckError{Recipient: id, Group: group, Err: err}
	}
	return status, nil
}

func (d *Dispatcher) send(ctx context.Context, id models.RecipientID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.SendText(ctx, id, text)
}

// safeCall runs fn with panic recovery so one recipient cannot take down the dispatch.
func (d *Dispatcher) safeCall(fn func(), id models.RecipientID) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("Delivery panicked",
				"chat_id", id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
