package dialogue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medschedule/booking-engine/internal/appointment"
	"github.com/medschedule/booking-engine/internal/metrics"
	"github.com/medschedule/booking-engine/internal/nlu"
)

var (
	// ErrNoPractitioner is a hard precondition failure: a turn arrived for
	// a session with no practitioner bound. Channel adapters turn this
	// into a transport-level error, it never reaches flow logic.
	ErrNoPractitioner = errors.New("session has no practitioner bound")
)

// Engine is the per-conversation finite-state controller. One inbound message
// is processed to completion per session key before the next; concurrency
// only exists across sessions.
type Engine struct {
	store     SessionStore
	repo      appointment.Repository
	avail     *appointment.Availability
	coord     *appointment.Coordinator
	extractor nlu.Extractor
	strategy  ExtractionStrategy
	metrics   *metrics.DialogueMetrics
	now       func() time.Time
	log       *zap.Logger

	fallbackTZ string
}

type EngineConfig struct {
	Store      SessionStore
	Repo       appointment.Repository
	Avail      *appointment.Availability
	Coord      *appointment.Coordinator
	Extractor  nlu.Extractor            // optional
	Strategy   ExtractionStrategy       // defaults to OnAmbiguity
	Metrics    *metrics.DialogueMetrics // optional
	Now        func() time.Time         // defaults to time.Now
	FallbackTZ string
	Logger     *zap.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Strategy == nil {
		cfg.Strategy = OnAmbiguity{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		store:      cfg.Store,
		repo:       cfg.Repo,
		avail:      cfg.Avail,
		coord:      cfg.Coord,
		extractor:  cfg.Extractor,
		strategy:   cfg.Strategy,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
		log:        cfg.Logger,
		fallbackTZ: cfg.FallbackTZ,
	}
}

// HandleTurn processes one inbound message for the session and returns the
// reply text. The conversation is never left unrecoverable: any error
// escaping the flow resets the session to idle and yields an apology.
func (e *Engine) HandleTurn(ctx context.Context, sessionKey string, practitionerID uuid.UUID, channel, message string) (reply string, err error) {
	if practitionerID == uuid.Nil {
		return "", ErrNoPractitioner
	}

	p, err := e.repo.GetPractitionerByID(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, appointment.ErrPractitionerNotFound) {
			return "", ErrNoPractitioner
		}
		return "", err
	}

	s, err := e.store.Get(ctx, sessionKey)
	if err != nil {
		e.log.Error("session load failed", zap.String("session", sessionKey), zap.Error(err))
		return msgApology, nil
	}
	if s == nil {
		s = NewSession(sessionKey, practitionerID)
	} else if s.PractitionerID != practitionerID {
		// The channel reused a session key against a different
		// practitioner. Flow state and the last-booking snapshot belong
		// to the old one.
		s.ResetFlow()
		s.LastAppointmentID = nil
		s.PractitionerID = practitionerID
	}

	e.metrics.ObserveTurn(channel, string(s.Intent))

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("turn panicked, resetting session",
				zap.String("session", sessionKey), zap.Any("panic", r))
			s.ResetFlow()
			_ = e.store.Put(ctx, s)
			reply = msgApology
			err = nil
		}
	}()

	reply, terr := e.processTurn(ctx, p, s, message)
	if terr != nil {
		e.log.Error("turn failed, resetting session",
			zap.String("session", sessionKey),
			zap.String("stage", string(s.Stage)),
			zap.Error(terr))
		e.metrics.ObserveOutcome(string(s.Intent), "error")
		s.ResetFlow()
		reply = msgApology
	}

	if perr := e.store.Put(ctx, s); perr != nil {
		e.log.Error("session save failed", zap.String("session", sessionKey), zap.Error(perr))
	}

	return reply, nil
}

func (e *Engine) processTurn(ctx context.Context, p *appointment.Practitioner, s *Session, message string) (string, error) {
	// One-shot greeting short-circuits everything else on the first turn.
	if !s.Greeted {
		s.Greeted = true
		return msgGreeting, nil
	}

	if isResetPhrase(message) {
		s.ResetFlow()
		return msgReset, nil
	}

	// A pending intent switch blocks the flow until answered.
	if s.PendingIntent != IntentNone {
		return e.handleIntentSwitch(ctx, p, s, message)
	}

	// Mid-flow hijack guard: a keyword for a different intent needs an
	// explicit confirmation before we abandon the active flow.
	if s.InFlow() {
		if k := ClassifyIntent(message); k != IntentNone && k != s.Intent {
			s.PendingIntent = k
			return msgSwitchIntent(s.Intent, k), nil
		}
	}

	switch s.Stage {
	case StageIdle:
		return e.handleIdle(ctx, p, s, message)
	case StageBookDate, StageBookTime, StageBookName, StageBookPhone:
		return e.runBookSteps(ctx, p, s, message, false)
	case StageBookConfirm:
		return e.handleBookConfirm(ctx, p, s, message)
	case StageCancelSelect:
		return e.handleSelect(ctx, p, s, message, IntentCancel)
	case StageCancelConfirm:
		return e.handleCancelConfirm(ctx, p, s, message)
	case StageRescheduleSelect:
		return e.handleSelect(ctx, p, s, message, IntentReschedule)
	case StageRescheduleDate, StageRescheduleTime:
		return e.runRescheduleSteps(ctx, p, s, message, false)
	case StageRescheduleConfirm:
		return e.handleRescheduleConfirm(ctx, p, s, message)
	case StageChangeChoice:
		return e.handleChangeChoice(s, message)
	default:
		// Unknown stage means corrupted state; recover to idle.
		s.ResetFlow()
		return msgIdleHelp, nil
	}
}

func (e *Engine) handleIntentSwitch(ctx context.Context, p *appointment.Practitioner, s *Session, message string) (string, error) {
	switch {
	case isAffirmative(message):
		next := s.PendingIntent
		s.ResetFlow()
		return e.beginFlow(ctx, p, s, next, "", nlu.Empty())
	case isNegative(message):
		s.PendingIntent = IntentNone
		return e.promptForStage(s), nil
	default:
		return msgSwitchIntent(s.Intent, s.PendingIntent), nil
	}
}

// handleIdle resolves the intent for a fresh turn: local rules first, the
// entity extractor only when the strategy says it is worth the call.
func (e *Engine) handleIdle(ctx context.Context, p *appointment.Practitioner, s *Session, message string) (string, error) {
	local := ClassifyIntent(message)
	intent := local
	seed := nlu.Empty()

	if e.extractor != nil && e.strategy.ShouldExtract(message, local) {
		ext, err := e.extractor.Extract(ctx, message, string(local))
		if err != nil {
			e.metrics.ObserveNLUCall("error")
		} else {
			e.metrics.ObserveNLUCall("ok")
			seed = ext
		}
		if intent == IntentNone && seed.Confidence != nlu.ConfidenceLow {
			switch seed.Intent {
			case "BOOK":
				intent = IntentBook
			case "CANCEL":
				intent = IntentCancel
			case "RESCHEDULE":
				intent = IntentReschedule
			}
		}
	}

	if intent == IntentNone {
		return msgIdleHelp, nil
	}

	return e.beginFlow(ctx, p, s, intent, message, seed)
}

func (e *Engine) beginFlow(ctx context.Context, p *appointment.Practitioner, s *Session, intent Intent, message string, seed nlu.Extraction) (string, error) {
	s.Intent = intent

	switch intent {
	case IntentBook:
		s.Stage = StageBookDate
		e.seedBookSlots(ctx, p, s, seed)
		if message == "" {
			return e.promptForStage(s), nil
		}
		return e.runBookSteps(ctx, p, s, message, true)
	case IntentCancel:
		return e.enterSelection(ctx, p, s, IntentCancel)
	case IntentReschedule:
		return e.enterSelection(ctx, p, s, IntentReschedule)
	default:
		s.ResetFlow()
		return msgIdleHelp, nil
	}
}

// promptForStage re-displays the question for the current stage, used when a
// declined intent switch resumes the active flow.
func (e *Engine) promptForStage(s *Session) string {
	switch s.Stage {
	case StageBookDate:
		return msgAskDate
	case StageBookTime:
		return msgAskTime
	case StageBookName:
		return msgAskName
	case StageBookPhone:
		return msgAskPhone
	case StageBookConfirm:
		return msgBookSummary(s)
	case StageCancelSelect, StageRescheduleSelect:
		if len(s.Candidates) > 0 {
			action := "cancel"
			if s.Stage == StageRescheduleSelect {
				action = "reschedule"
			}
			return msgCandidateList(s.Candidates, action)
		}
		return msgAskPhoneLookup
	case StageCancelConfirm:
		if c, ok := s.selectedCandidate(); ok {
			return msgCancelConfirm(c)
		}
		return msgAskPhoneLookup
	case StageRescheduleDate:
		return msgAskNewDate
	case StageRescheduleTime:
		return msgAskNewTime
	case StageRescheduleConfirm:
		return msgRescheduleSummary(s)
	case StageChangeChoice:
		return msgChangeChoice
	default:
		return msgIdleHelp
	}
}

func (s *Session) selectedCandidate() (Candidate, bool) {
	if s.SelectedID == nil {
		return Candidate{}, false
	}
	for _, c := range s.Candidates {
		if c.ID == *s.SelectedID {
			return c, true
		}
	}
	return Candidate{}, false
}
