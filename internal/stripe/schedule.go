package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"

	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
)

// PhaseReplacement carries the rebuilt editable phases of a schedule.
// Current is mandatory; a next phase without a current phase is an
// invalid schedule update and is rejected before any provider call.
type PhaseReplacement struct {
	Current *stripe.SubscriptionScheduleUpdatePhaseParams
	Next    *stripe.SubscriptionScheduleUpdatePhaseParams
}

// ScheduleService is the provider subscription-schedule contract
type ScheduleService interface {
	// GetSubscriptionWithSchedule fetches the subscription with its
	// schedule and phase prices expanded
	GetSubscriptionWithSchedule(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)

	// FindOrCreateSubscriptionSchedule returns the attached schedule,
	// creating one from the live subscription when none exists
	FindOrCreateSubscriptionSchedule(ctx context.Context, sub *stripe.Subscription) (*stripe.SubscriptionSchedule, error)

	// CreateScheduleFromSubscription creates a schedule seeded from
	// the subscription's current state
	CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*stripe.SubscriptionSchedule, error)

	// CurrentAndNextPhases extracts the phase covering now and the one
	// immediately following it, either of which may be nil
	CurrentAndNextPhases(schedule *stripe.SubscriptionSchedule) (current, next *stripe.SubscriptionSchedulePhase)

	// ReplaceEditablePhases rewrites the current and optional next
	// phase of the schedule in one call
	ReplaceEditablePhases(ctx context.Context, scheduleID string, phases PhaseReplacement) (*stripe.SubscriptionSchedule, error)

	// Release detaches the schedule, leaving the subscription on its
	// current configuration
	Release(ctx context.Context, scheduleID string) error
}

type scheduleService struct {
	client *Client
	logger *logger.Logger
}

// NewScheduleService creates the Stripe-backed schedule service
func NewScheduleService(client *Client, logger *logger.Logger) ScheduleService {
	return &scheduleService{client: client, logger: logger}
}

func (s *scheduleService) GetSubscriptionWithSchedule(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionRetrieveParams{
		Expand: []*string{
			stripe.String("customer"),
			stripe.String("items.data.price.product"),
			stripe.String("schedule.phases.items.price"),
		},
	}

	sub, err := s.client.API().V1Subscriptions.Retrieve(ctx, subscriptionID, params)
	if err != nil {
		s.logger.Errorw("failed to retrieve subscription with schedule",
			"error", err,
			"subscription_id", subscriptionID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not fetch subscription information from the billing provider").
			WithReportableDetails(map[string]any{
				"subscription_id": subscriptionID,
			}).
			Mark(ierr.ErrProviderCall)
	}

	return sub, nil
}

func (s *scheduleService) FindOrCreateSubscriptionSchedule(ctx context.Context, sub *stripe.Subscription) (*stripe.SubscriptionSchedule, error) {
	if sub.Schedule == nil || sub.Schedule.ID == "" {
		return s.CreateScheduleFromSubscription(ctx, sub.ID)
	}

	// The schedule reference may be unexpanded; re-read it with phases
	if len(sub.Schedule.Phases) == 0 {
		schedule, err := s.client.API().V1SubscriptionSchedules.Retrieve(ctx, sub.Schedule.ID, &stripe.SubscriptionScheduleRetrieveParams{
			Expand: []*string{stripe.String("phases.items.price")},
		})
		if err != nil {
			return nil, ierr.WithError(err).
				WithHint("Could not fetch subscription schedule from the billing provider").
				Mark(ierr.ErrProviderCall)
		}
		return schedule, nil
	}

	return sub.Schedule, nil
}

func (s *scheduleService) CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*stripe.SubscriptionSchedule, error) {
	schedule, err := s.client.API().V1SubscriptionSchedules.Create(ctx, &stripe.SubscriptionScheduleCreateParams{
		FromSubscription: stripe.String(subscriptionID),
	})
	if err != nil {
		s.logger.Errorw("failed to create schedule from subscription",
			"error", err,
			"subscription_id", subscriptionID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not create a subscription schedule at the billing provider").
			Mark(ierr.ErrProviderCall)
	}

	s.logger.Infow("created subscription schedule",
		"subscription_id", subscriptionID,
		"schedule_id", schedule.ID,
	)

	return schedule, nil
}

func (s *scheduleService) CurrentAndNextPhases(schedule *stripe.SubscriptionSchedule) (current, next *stripe.SubscriptionSchedulePhase) {
	if schedule == nil {
		return nil, nil
	}

	now := time.Now().Unix()
	for i, phase := range schedule.Phases {
		if phase.StartDate <= now && (phase.EndDate == 0 || now < phase.EndDate) {
			current = phase
			if i+1 < len(schedule.Phases) {
				next = schedule.Phases[i+1]
			}
			return current, next
		}
	}

	return nil, nil
}

func (s *scheduleService) ReplaceEditablePhases(ctx context.Context, scheduleID string, phases PhaseReplacement) (*stripe.SubscriptionSchedule, error) {
	if phases.Current == nil {
		return nil, ierr.NewError("schedule update requires a current phase").
			WithHint("A next phase cannot be written without its current phase").
			Mark(ierr.ErrInvalidState)
	}

	params := &stripe.SubscriptionScheduleUpdateParams{
		Phases: []*stripe.SubscriptionScheduleUpdatePhaseParams{phases.Current},
	}
	if phases.Next != nil {
		params.Phases = append(params.Phases, phases.Next)
	}

	schedule, err := s.client.API().V1SubscriptionSchedules.Update(ctx, scheduleID, params)
	if err != nil {
		s.logger.Errorw("failed to replace schedule phases",
			"error", err,
			"schedule_id", scheduleID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not update the subscription schedule at the billing provider").
			WithReportableDetails(map[string]any{
				"schedule_id": scheduleID,
			}).
			Mark(ierr.ErrProviderCall)
	}

	return schedule, nil
}

func (s *scheduleService) Release(ctx context.Context, scheduleID string) error {
	_, err := s.client.API().V1SubscriptionSchedules.Release(ctx, scheduleID, &stripe.SubscriptionScheduleReleaseParams{})
	if err != nil {
		s.logger.Errorw("failed to release schedule",
			"error", err,
			"schedule_id", scheduleID,
		)
		return ierr.WithError(err).
			WithHint("Could not release the subscription schedule at the billing provider").
			Mark(ierr.ErrProviderCall)
	}

	s.logger.Infow("released subscription schedule", "schedule_id", scheduleID)
	return nil
}
