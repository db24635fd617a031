package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-checkin/internal/codec"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/participants"
	"ms-checkin/internal/policy"
)

const (
	StatusOK      = "ok"
	StatusAlready = "already"
	StatusError   = "error"
)

// Resolver maps a redemption code to the participant and the ticket type
// carrying the access policy. Backed by the participants table here; the
// surrounding platform may inject its own.
type Resolver interface {
	ResolveCode(ctx context.Context, code, eventID string) (*models.Participant, *models.TicketType, error)
}

type LedgerStore interface {
	Append(ctx context.Context, entry models.CheckinHistory) error
	Query(ctx context.Context, eventID, participantID string) ([]models.CheckinHistory, error)
}

type ParticipantFlagStore interface {
	MarkCheckedIn(ctx context.Context, participantID string, at time.Time) error
}

type StationCounter interface {
	RecordRedemption(ctx context.Context, stationID string, at time.Time) error
}

type EventPublisher interface {
	PublishCheckinCompleted(entry models.CheckinHistory) error
	PublishCheckinDenied(eventID, participantID, reason string) error
}

type RedemptionEmitter interface {
	Emit(event RedemptionEvent)
}

// RedemptionEvent is broadcast to stream subscribers on every processed
// redemption, allowed or denied.
type RedemptionEvent struct {
	EventID       string                 `json:"event_id"`
	ParticipantID string                 `json:"participant_id"`
	StationID     string                 `json:"station_id,omitempty"`
	Result        RedemptionResult       `json:"result"`
	Entry         *models.CheckinHistory `json:"entry,omitempty"`
	At            time.Time              `json:"at"`
}

type RedemptionResult struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	Decision        string `json:"decision,omitempty"`
	EntryNumber     int    `json:"entry_number,omitempty"`
	ParticipantID   string `json:"participant_id,omitempty"`
	ParticipantName string `json:"participant_name,omitempty"`
}

type RedeemOptions struct {
	AccessZone                   string
	StationID                    string
	OperatorID                   string
	Method                       string
	AllowMultipleEntriesOverride bool
}

type BulkResult struct {
	Successful     int        `json:"successful"`
	Failed         int        `json:"failed"`
	AlreadyChecked int        `json:"already_checked"`
	Results        []BulkItem `json:"results"`
}

type BulkItem struct {
	Code   string           `json:"code"`
	Result RedemptionResult `json:"result"`
}

// Service is the redemption coordinator: it resolves a scanned code, runs
// the access policy against the ledger and, under the participant lock,
// appends the ledger entry and updates the cached flag and station counter.
type Service struct {
	Resolver     Resolver
	Ledger       LedgerStore
	Participants ParticipantFlagStore
	Stations     StationCounter
	Locks        ParticipantLocker
	Publisher    EventPublisher    // optional
	Emitter      RedemptionEmitter // optional
	Codec        *codec.Codec      // optional; bare codes still work without it
	Evaluator    *policy.Evaluator
	Logger       *logger.Logger // optional

	TokenTTL    time.Duration // signed-token validity window
	LockRetries int           // extra lock attempts after the first
	Now         func() time.Time
}

const defaultLockRetries = 2

func NewService(resolver Resolver, ledgerStore LedgerStore, flags ParticipantFlagStore, stations StationCounter, locks ParticipantLocker, evaluator *policy.Evaluator) *Service {
	return &Service{
		Resolver:     resolver,
		Ledger:       ledgerStore,
		Participants: flags,
		Stations:     stations,
		Locks:        locks,
		Evaluator:    evaluator,
		TokenTTL:     codec.DefaultTTL,
		LockRetries:  defaultLockRetries,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Redeem processes one scan. Policy denials are expected business outcomes
// returned in the result, never as errors. The returned error is non-nil
// only for infrastructure failures: exhausted lock retries (ErrBusy) or a
// ledger append that could not be committed (ledger.ErrPersistence).
func (s *Service) Redeem(ctx context.Context, code, eventID string, opts RedeemOptions) (RedemptionResult, error) {
	now := s.Now()

	lookupCode, ok := s.resolveScan(code, eventID, now)
	if !ok {
		return RedemptionResult{Status: StatusError, Message: "Invalid ticket code"}, nil
	}

	participant, ticketType, err := s.Resolver.ResolveCode(ctx, lookupCode, eventID)
	if errors.Is(err, participants.ErrUnknownCode) {
		return RedemptionResult{Status: StatusError, Message: "Invalid ticket code"}, nil
	}
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("code lookup failed: %w", err)
	}

	release, err := s.acquireLock(ctx, participant.ID)
	if err != nil {
		return RedemptionResult{}, err
	}
	defer release()

	history, err := s.Ledger.Query(ctx, eventID, participant.ID)
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("ledger query failed: %w", err)
	}

	ac := ticketType.AccessControl
	if opts.AllowMultipleEntriesOverride {
		ac.AllowMultipleEntries = true
	}

	decision := s.Evaluator.Evaluate(ac, history, opts.AccessZone, now)
	if !decision.Allowed() {
		result := denialResult(decision, participant)
		s.notifyDenied(eventID, participant.ID, decision, opts, result, now)
		return result, nil
	}

	entry := models.CheckinHistory{
		ID:            uuid.New().String(),
		EventID:       eventID,
		ParticipantID: participant.ID,
		TicketTypeID:  ticketType.ID,
		CheckedInAt:   now, // service clock, not the scanner's
		EntryNumber:   decision.EntryNumber,
		AccessZone:    opts.AccessZone,
		StationID:     opts.StationID,
		OperatorID:    opts.OperatorID,
		Method:        method(opts.Method),
	}

	// The append must be durable before ok is reported.
	if err := s.Ledger.Append(ctx, entry); err != nil {
		return RedemptionResult{}, err
	}

	// Cached flag and station counter are read optimizations; their
	// failures are logged, never surfaced as a failed redemption.
	if err := s.Participants.MarkCheckedIn(ctx, participant.ID, now); err != nil {
		s.logWarn("CHECKIN", fmt.Sprintf("failed to update cached flag for %s: %v", participant.ID, err))
	}
	if opts.StationID != "" {
		if err := s.Stations.RecordRedemption(ctx, opts.StationID, now); err != nil {
			s.logWarn("STATION", fmt.Sprintf("failed to bump counter on %s: %v", opts.StationID, err))
		}
	}

	result := RedemptionResult{
		Status:          StatusOK,
		Message:         fmt.Sprintf("Check-in successful (entry #%d)", entry.EntryNumber),
		Decision:        decision.Code.String(),
		EntryNumber:     entry.EntryNumber,
		ParticipantID:   participant.ID,
		ParticipantName: participant.Name,
	}
	s.notifyCompleted(entry, result, now)
	return result, nil
}

// BulkCheckIn applies Redeem per code, strictly in order: each mutation
// completes before the next code starts, preserving per-participant entry
// ordering within the batch. A bad code never aborts the batch; only
// context cancellation stops it early.
func (s *Service) BulkCheckIn(ctx context.Context, codes []string, eventID string, opts RedeemOptions) (BulkResult, error) {
	if opts.Method == "" {
		opts.Method = models.MethodBulk
	}

	var bulk BulkResult
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return bulk, err
		}

		result, err := s.Redeem(ctx, code, eventID, opts)
		if err != nil {
			result = RedemptionResult{Status: StatusError, Message: err.Error()}
		}

		switch result.Status {
		case StatusOK:
			bulk.Successful++
		case StatusAlready:
			bulk.AlreadyChecked++
		default:
			bulk.Failed++
		}
		bulk.Results = append(bulk.Results, BulkItem{Code: code, Result: result})
	}
	return bulk, nil
}

// resolveScan unwraps a signed token into its embedded check-in code. Codec
// failures (malformed, bad signature, expired) all collapse into an invalid
// code: cryptographic detail never reaches the operator.
func (s *Service) resolveScan(code, eventID string, now time.Time) (string, bool) {
	if s.Codec == nil || !codec.IsToken(code) {
		return code, true
	}
	payload, err := s.Codec.Decode(code)
	if err != nil {
		s.logWarn("CODEC", fmt.Sprintf("rejected scan token: %v", err))
		return "", false
	}
	if err := codec.CheckExpiry(payload, s.TokenTTL, now); err != nil {
		s.logWarn("CODEC", fmt.Sprintf("rejected token for participant %s: %v", payload.ParticipantID, err))
		return "", false
	}
	if payload.EventID != eventID {
		return "", false
	}
	return payload.Code, true
}

func (s *Service) acquireLock(ctx context.Context, participantID string) (func(), error) {
	attempts := s.LockRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		release, err := s.Locks.Acquire(ctx, participantID)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, ErrBusy) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 50 * time.Millisecond):
		}
	}
	return nil, ErrBusy
}

func denialResult(decision policy.Decision, participant *models.Participant) RedemptionResult {
	status := StatusError
	if decision.Code == policy.DenyAlready {
		// Informational for the operator, not a fault.
		status = StatusAlready
	}
	return RedemptionResult{
		Status:          status,
		Message:         decision.Reason,
		Decision:        decision.Code.String(),
		ParticipantID:   participant.ID,
		ParticipantName: participant.Name,
	}
}

func (s *Service) notifyCompleted(entry models.CheckinHistory, result RedemptionResult, now time.Time) {
	if s.Publisher != nil {
		if err := s.Publisher.PublishCheckinCompleted(entry); err != nil {
			s.logWarn("KAFKA", fmt.Sprintf("failed to publish checkin-completed: %v", err))
		}
	}
	if s.Emitter != nil {
		s.Emitter.Emit(RedemptionEvent{
			EventID:       entry.EventID,
			ParticipantID: entry.ParticipantID,
			StationID:     entry.StationID,
			Result:        result,
			Entry:         &entry,
			At:            now,
		})
	}
}

func (s *Service) notifyDenied(eventID, participantID string, decision policy.Decision, opts RedeemOptions, result RedemptionResult, now time.Time) {
	if s.Publisher != nil {
		if err := s.Publisher.PublishCheckinDenied(eventID, participantID, decision.Code.String()); err != nil {
			s.logWarn("KAFKA", fmt.Sprintf("failed to publish checkin-denied: %v", err))
		}
	}
	if s.Emitter != nil {
		s.Emitter.Emit(RedemptionEvent{
			EventID:       eventID,
			ParticipantID: participantID,
			StationID:     opts.StationID,
			Result:        result,
			At:            now,
		})
	}
}

func method(m string) string {
	switch m {
	case models.MethodQR, models.MethodManual, models.MethodBulk:
		return m
	default:
		return models.MethodManual
	}
}

func (s *Service) logWarn(category, message string) {
	if s.Logger != nil {
		s.Logger.Warn(category, message)
	}
}
