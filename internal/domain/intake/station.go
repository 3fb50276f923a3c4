package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/frontdesk/internal/domain/admission"
	"github.com/ehr/frontdesk/internal/domain/visit"
)

var ErrStationClosed = errors.New("station is closed")

// Checker classifies a raw code and performs the admission transition.
// *admission.Service implements it.
type Checker interface {
	Check(ctx context.Context, raw string, target visit.Status) (*admission.Outcome, error)
}

type Options struct {
	Debounce       time.Duration
	CooldownTicks  int
	Tick           time.Duration
	ClearDelay     time.Duration
	RequestTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Debounce:       500 * time.Millisecond,
		CooldownTicks:  3,
		Tick:           time.Second,
		ClearDelay:     3500 * time.Millisecond,
		RequestTimeout: 15 * time.Second,
	}
}

// Snapshot is the observable state of a station.
type Snapshot struct {
	ID        string             `json:"id"`
	Target    visit.Status       `json:"target"`
	Remaining int                `json:"cooldown_remaining"`
	LastCode  string             `json:"last_code,omitempty"`
	Entry     string             `json:"entry,omitempty"`
	Busy      bool               `json:"busy"`
	Last      *admission.Outcome `json:"last_outcome,omitempty"`
	LastError string             `json:"last_error,omitempty"`
	Closed    bool               `json:"closed"`
}

// Station owns the input pipeline of one check-in screen: scan dedup,
// manual-entry debounce, cooldown and the delayed dedup clear. Every timer
// callback carries the sequence number it was armed with and does nothing
// once that number has moved on, so stopped timers can never act late.
type Station struct {
	id      string
	target  visit.Status
	checker Checker
	sink    Sink
	opts    Options
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	lastScan  string
	entry     string
	remaining int
	busy      bool
	last      *admission.Outcome
	lastErr   string

	debounce    *time.Timer
	debounceSeq uint64
	cooldown    *time.Timer
	cooldownSeq uint64
	clear       *time.Timer
	clearSeq    uint64
	attemptSeq  uint64
}

func NewStation(id string, target visit.Status, checker Checker, sink Sink, opts Options, logger zerolog.Logger) *Station {
	if target == "" {
		target = visit.StatusQueued
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Station{
		id:      id,
		target:  target,
		checker: checker,
		sink:    sink,
		opts:    opts,
		logger:  logger.With().Str("component", "intake").Str("station_id", id).Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Station) ID() string { return s.id }

// Scan accepts one decoded camera frame. It reports whether the code was
// sent for classification.
func (s *Station) Scan(raw string) (bool, error) {
	code := admission.NormalizeCode(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStationClosed
	}
	if code == "" {
		s.drop(code, DropEmpty)
		return false, nil
	}
	if code == s.lastScan {
		s.drop(code, DropDuplicate)
		return false, nil
	}
	if reason := s.gateLocked(); reason != "" {
		s.drop(code, reason)
		return false, nil
	}
	s.lastScan = code
	s.startLocked(code)
	return true, nil
}

// Keystroke replaces the manual-entry buffer and restarts the debounce.
func (s *Station) Keystroke(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStationClosed
	}
	s.entry = text
	s.debounceSeq++
	seq := s.debounceSeq
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.opts.Debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || seq != s.debounceSeq {
			return
		}
		s.debounce = nil
		s.flushLocked()
	})
	return nil
}

// Submit sends the manual entry now instead of waiting for the debounce.
// Cooldown still applies.
func (s *Station) Submit() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStationClosed
	}
	s.debounceSeq++
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	return s.flushLocked(), nil
}

// Dismiss clears the displayed result and the scan dedup key. A running
// cooldown keeps counting.
func (s *Station) Dismiss() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStationClosed
	}
	s.clearLocked()
	return nil
}

func (s *Station) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		Target:    s.target,
		Remaining: s.remaining,
		LastCode:  s.lastScan,
		Entry:     s.entry,
		Busy:      s.busy,
		Last:      s.last,
		LastError: s.lastErr,
		Closed:    s.closed,
	}
}

// Close stops every timer and abandons the in-flight request; a response
// that arrives afterwards is discarded.
func (s *Station) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.debounceSeq++
	s.cooldownSeq++
	s.clearSeq++
	s.attemptSeq++
	for _, t := range []*time.Timer{s.debounce, s.cooldown, s.clear} {
		if t != nil {
			t.Stop()
		}
	}
	s.debounce, s.cooldown, s.clear = nil, nil, nil
	s.busy = false
	s.cancel()
}

func (s *Station) gateLocked() string {
	if s.busy {
		return DropBusy
	}
	if s.remaining > 0 {
		return DropCooldown
	}
	return ""
}

func (s *Station) flushLocked() bool {
	code := admission.NormalizeCode(s.entry)
	if code == "" {
		return false
	}
	if reason := s.gateLocked(); reason != "" {
		s.drop(code, reason)
		return false
	}
	s.startLocked(code)
	return true
}

func (s *Station) drop(code, reason string) {
	s.sink.Emit(Event{Kind: EventDropped, StationID: s.id, Code: code, Reason: reason, Remaining: s.remaining, At: time.Now()})
}

func (s *Station) startLocked(code string) {
	s.busy = true
	s.attemptSeq++
	seq := s.attemptSeq
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)

	go func() {
		defer cancel()
		out, err := s.checker.Check(ctx, code, s.target)
		s.finish(seq, code, out, err)
	}()
}

func (s *Station) finish(seq uint64, code string, out *admission.Outcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.attemptSeq {
		return
	}
	s.busy = false
	s.last = out
	s.lastErr = ""
	ev := Event{Kind: EventResult, StationID: s.id, Code: code, Outcome: out, At: time.Now()}
	if err != nil {
		s.lastErr = err.Error()
		ev.Error = err.Error()
		s.logger.Warn().Err(err).Str("code", code).Msg("admission attempt failed")
	}
	s.sink.Emit(ev)
	s.startCooldownLocked()

	if err == nil && out != nil && out.Decision == admission.DecisionAdmit {
		s.scheduleClearLocked(code)
	}
}

func (s *Station) startCooldownLocked() {
	s.cooldownSeq++
	if s.cooldown != nil {
		s.cooldown.Stop()
	}
	s.remaining = s.opts.CooldownTicks
	s.emitCooldown()
	s.armTickLocked(s.cooldownSeq)
}

func (s *Station) armTickLocked(seq uint64) {
	s.cooldown = time.AfterFunc(s.opts.Tick, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || seq != s.cooldownSeq {
			return
		}
		s.remaining--
		s.emitCooldown()
		if s.remaining > 0 {
			s.armTickLocked(seq)
			return
		}
		s.cooldown = nil
	})
}

func (s *Station) emitCooldown() {
	s.sink.Emit(Event{Kind: EventCooldown, StationID: s.id, Remaining: s.remaining, At: time.Now()})
}

func (s *Station) scheduleClearLocked(code string) {
	s.clearSeq++
	seq := s.clearSeq
	if s.clear != nil {
		s.clear.Stop()
	}
	s.clear = time.AfterFunc(s.opts.ClearDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || seq != s.clearSeq {
			return
		}
		s.clear = nil
		if s.lastScan == code {
			s.lastScan = ""
			s.sink.Emit(Event{Kind: EventCleared, StationID: s.id, Code: code, Remaining: s.remaining, At: time.Now()})
		}
	})
}

func (s *Station) clearLocked() {
	s.clearSeq++
	if s.clear != nil {
		s.clear.Stop()
		s.clear = nil
	}
	code := s.lastScan
	s.lastScan = ""
	s.last = nil
	s.lastErr = ""
	s.sink.Emit(Event{Kind: EventCleared, StationID: s.id, Code: code, Remaining: s.remaining, At: time.Now()})
}
