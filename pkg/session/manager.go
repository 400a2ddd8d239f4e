package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/companion/pkg/adapters/stt"
	"github.com/harunnryd/companion/pkg/adapters/tts"
	"github.com/harunnryd/companion/pkg/dialogue"
	"github.com/harunnryd/companion/pkg/errorsx"
	"github.com/harunnryd/companion/pkg/frames"
	"github.com/harunnryd/companion/pkg/transports"
)

// Recognizer turns one utterance into a transcript.
type Recognizer interface {
	Recognize(ctx context.Context, utt frames.Utterance) (stt.Transcript, error)
}

// Responder produces the companion's reply for one transcript.
type Responder interface {
	Respond(ctx context.Context, req dialogue.Request) (dialogue.Reply, error)
}

// Speaker renders reply text to audio.
type Speaker interface {
	Synthesize(ctx context.Context, text string) (tts.Audio, error)
}

// Config tunes the session registry.
type Config struct {
	// IdleTimeout evicts sessions with no inbound activity.
	IdleTimeout time.Duration
	// SweepInterval spaces idle-eviction scans.
	SweepInterval time.Duration
	// CycleTimeout bounds one full recognize→respond→synthesize cycle.
	CycleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 30 * time.Second
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 60 * time.Second
	}
	return c
}

// Session is one live conversation over one transport connection.
type Session struct {
	ID       string
	Identity string

	transport transports.Transport
	fsm       *stateMachine
	cancel    context.CancelFunc

	lastActivity atomic.Int64
}

// State returns the session's lifecycle state.
func (s *Session) State() State { return s.fsm.State() }

// AddListener registers a lifecycle listener.
func (s *Session) AddListener(l StateListener) { s.fsm.AddListener(l) }

// Touch records inbound activity for idle accounting.
func (s *Session) Touch() { s.lastActivity.Store(time.Now().UnixNano()) }

// IdleFor reports time since the last inbound activity.
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivity.Load()))
}

// Manager owns the session registry: attach, serve, evict, drain.
// Each session gets one worker goroutine, so utterances on one session
// are processed strictly in arrival order with one reply cycle in flight.
type Manager struct {
	cfg        Config
	recognizer Recognizer
	responder  Responder
	speaker    Speaker
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager builds a session registry.
func NewManager(cfg Config, recognizer Recognizer, responder Responder, speaker Speaker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:        cfg.withDefaults(),
		recognizer: recognizer,
		responder:  responder,
		speaker:    speaker,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
}

// Attach registers a new session over the given transport and starts its
// worker. The session starts in CONNECTING and is READY on return.
func (m *Manager) Attach(ctx context.Context, identity string, tr transports.Transport) (*Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		transport: tr,
		fsm:       newStateMachine(),
		cancel:    cancel,
	}
	s.Touch()
	if err := s.fsm.Transition(StateReady, "registered"); err != nil {
		cancel()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.wg.Add(1)
	go m.serve(sctx, s)

	m.logger.Info("session attached",
		"session_id", s.ID, "identity", identity, "transport", tr.Name())
	return s, nil
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run drives idle eviction until ctx is cancelled, then drains every
// remaining session.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-ctx.Done():
			m.Drain()
			return ctx.Err()
		}
	}
}

// Drain closes all live sessions and waits for their workers.
func (m *Manager) Drain() {
	m.mu.Lock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.Unlock()

	for _, s := range snapshot {
		m.close(s, "server shutdown", nil)
	}
	m.wg.Wait()
}

func (m *Manager) sweep() {
	m.mu.Lock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.Unlock()

	for _, s := range snapshot {
		state := s.State()
		if state != StateReady && state != StateIdle {
			continue
		}
		if s.IdleFor() < m.cfg.IdleTimeout {
			continue
		}
		m.logger.Info("evicting idle session",
			"session_id", s.ID, "idle_for", s.IdleFor())
		m.close(s, "idle timeout", nil)
	}
}

// serve is the per-session worker. It is the only consumer of the
// transport's utterance stream, which makes reply ordering trivial. A
// separate watcher turns the transport's terminal close into a session
// close so an in-flight cycle gets cancelled, not just abandoned.
func (m *Manager) serve(ctx context.Context, s *Session) {
	defer m.wg.Done()
	go m.watch(ctx, s)
	for {
		select {
		case utt, ok := <-s.transport.Utterances():
			if !ok {
				m.close(s, "transport drained", nil)
				return
			}
			s.Touch()
			if err := s.fsm.Transition(StateActive, "utterance received"); err != nil {
				return
			}
			m.runCycle(ctx, s, utt)
			s.Touch()
			if err := s.fsm.Transition(StateIdle, "cycle complete"); err != nil {
				return
			}
		case <-ctx.Done():
			m.close(s, "context cancelled", ctx.Err())
			return
		}
	}
}

func (m *Manager) watch(ctx context.Context, s *Session) {
	select {
	case ev := <-s.transport.Closed():
		if ev.Err != nil {
			m.logger.Warn("transport failed",
				"session_id", s.ID, "reason", ev.Reason, "error", ev.Err)
		}
		m.close(s, string(ev.Reason), ev.Err)
	case <-ctx.Done():
	}
}

// close performs the terminal transition exactly once: cancel in-flight
// work, release the transport, unregister.
func (m *Manager) close(s *Session, reason string, err error) {
	if trErr := s.fsm.Transition(StateClosing, reason); trErr != nil {
		return
	}
	s.cancel()
	s.transport.Close()
	_ = s.fsm.Transition(StateClosed, reason)

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	m.logger.Info("session closed",
		"session_id", s.ID, "reason", reason, "error", err)
}

// runCycle executes one utterance→reply cycle. Any stage failure yields
// exactly one error envelope; a synthesis failure after the text reply is
// delivered leaves the text in place.
func (m *Manager) runCycle(ctx context.Context, s *Session, utt frames.Utterance) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.CycleTimeout)
	defer cancel()
	log := m.logger.With("session_id", s.ID, "utterance_id", utt.ID)

	transcript, err := m.recognizer.Recognize(cctx, utt)
	if err != nil {
		m.deliverError(s, err, log, "recognition failed")
		return
	}
	if strings.TrimSpace(transcript.Text) == "" {
		err := errorsx.New(errorsx.ReasonRecognitionFailed, "no speech recognized")
		m.deliverError(s, err, log, "empty transcript")
		return
	}
	log.Debug("utterance recognized",
		"chars", len(transcript.Text), "confidence", transcript.Confidence)

	reply, err := m.responder.Respond(cctx, dialogue.Request{
		Identity:   s.Identity,
		SessionID:  s.ID,
		Transcript: transcript.Text,
	})
	if err != nil {
		m.deliverError(s, err, log, "dialogue failed")
		return
	}

	// Text goes first so the client always has something to show, even if
	// synthesis never arrives.
	if err := s.transport.Send(frames.NewTextMessage(reply.Text)); err != nil {
		log.Warn("text reply not delivered", "error", err)
		return
	}
	if !reply.Speak {
		return
	}

	audio, err := m.speaker.Synthesize(cctx, reply.Text)
	if err != nil {
		m.deliverError(s, err, log, "synthesis failed")
		return
	}
	if err := s.transport.Send(frames.NewAudioMessage(audio.Data, audio.MIME)); err != nil {
		log.Warn("audio reply not delivered", "error", err)
	}
}

func (m *Manager) deliverError(s *Session, err error, log *slog.Logger, stage string) {
	log.Error(stage, "error", err, "reason", errorsx.Reason(err))
	msg := frames.NewErrorMessage(errorsx.UserMessage(err), string(errorsx.Reason(err)))
	if sendErr := s.transport.Send(msg); sendErr != nil {
		log.Warn("error envelope not delivered", "error", sendErr)
	}
}
