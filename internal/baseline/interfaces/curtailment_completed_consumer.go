package interfaces

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	baseline "vibelux-energy/internal/baseline/domain"
	curtailment "vibelux-energy/internal/curtailment/domain"
	"vibelux-energy/internal/eventing"
	"vibelux-energy/internal/eventing/eventbus"
)

// ConsumerName identifies this consumer in the processed-events store.
const ConsumerName = "baseline.exclusions"

// CurtailmentCompletedConsumer records a baseline exclusion for every
// completed curtailment activation, so curtailed intervals never feed the
// expected-consumption curve.
type CurtailmentCompletedConsumer struct {
	exclusions baseline.ExclusionRepository
	logger     *log.Logger
}

// NewCurtailmentCompletedConsumer constructs the consumer.
func NewCurtailmentCompletedConsumer(exclusions baseline.ExclusionRepository, logger *log.Logger) (*CurtailmentCompletedConsumer, error) {
	if exclusions == nil {
		return nil, errors.New("curtailment consumer: nil exclusion repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CurtailmentCompletedConsumer{exclusions: exclusions, logger: logger}, nil
}

// Register subscribes the consumer on the bus with idempotency.
func (c *CurtailmentCompletedConsumer) Register(bus eventbus.EventBus, processed eventing.ProcessedStore) {
	eventing.Subscribe(bus, eventbus.EventTypeOf[curtailment.CurtailmentCompleted](), ConsumerName, c.Handle, processed)
}

// Handle consumes one CurtailmentCompleted event.
func (c *CurtailmentCompletedConsumer) Handle(ctx context.Context, event any) error {
	completed, ok := event.(curtailment.CurtailmentCompleted)
	if !ok {
		if ptr, isPtr := event.(*curtailment.CurtailmentCompleted); isPtr {
			completed = *ptr
		} else {
			return fmt.Errorf("curtailment consumer: unexpected event %T", event)
		}
	}

	exclusion := &baseline.Exclusion{
		ScheduleID: completed.ScheduleID,
		FacilityID: completed.FacilityID,
		ZoneID:     completed.ZoneID,
		Start:      completed.Start,
		End:        completed.End,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.exclusions.Save(ctx, exclusion); err != nil {
		return err
	}
	c.logger.Printf("baseline: recorded exclusion for schedule %s (%s..%s)",
		completed.ScheduleID, completed.Start.Format(time.RFC3339), completed.End.Format(time.RFC3339))
	return nil
}
