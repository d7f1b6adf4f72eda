package services

import (
	"sync"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/pkg/utils"
)

// CallSession is one call attempt. Phase changes go through CallService;
// the accessors and local toggles are safe to use from any goroutine.
type CallSession struct {
	mu sync.Mutex

	callID    domain.CallID
	peerID    domain.UserID
	peerName  string
	isVideo   bool
	direction domain.CallDirection

	phase     domain.CallPhase
	startedAt time.Time
	elapsed   int64
	endReason domain.EndReason

	muted        bool
	speakerOn    bool
	videoEnabled bool

	tickInterval time.Duration
	tickStop     chan struct{}
	setupTimer   *time.Timer
	done         chan struct{}
}

func newCallSession(direction domain.CallDirection, callID domain.CallID, peerID domain.UserID, peerName string, isVideo bool, tickInterval time.Duration) *CallSession {
	return &CallSession{
		callID:       callID,
		peerID:       peerID,
		peerName:     peerName,
		isVideo:      isVideo,
		direction:    direction,
		phase:        domain.PhaseRinging,
		speakerOn:    isVideo,
		videoEnabled: isVideo,
		tickInterval: tickInterval,
		done:         make(chan struct{}),
	}
}

func (s *CallSession) Snapshot() domain.CallSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.CallSnapshot{
		CallID:         s.callID,
		PeerID:         s.peerID,
		PeerName:       s.peerName,
		IsVideo:        s.isVideo,
		Direction:      s.direction,
		Phase:          s.phase,
		StartedAt:      s.startedAt,
		ElapsedSeconds: s.elapsed,
		Duration:       utils.FormatCallDuration(s.elapsed),
		Muted:          s.muted,
		SpeakerOn:      s.speakerOn,
		VideoEnabled:   s.videoEnabled,
		EndReason:      s.endReason,
	}
}

func (s *CallSession) Phase() domain.CallPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *CallSession) CallID() domain.CallID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID
}

func (s *CallSession) ElapsedSeconds() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// FormattedDuration renders elapsed time as M:SS, or H:MM:SS past an hour.
func (s *CallSession) FormattedDuration() string {
	return utils.FormatCallDuration(s.ElapsedSeconds())
}

// Done is closed when the session reaches the ended phase.
func (s *CallSession) Done() <-chan struct{} {
	return s.done
}

// Local control flags. They are not signaled to the peer.

func (s *CallSession) ToggleMute() bool {
	return s.toggle(&s.muted)
}

func (s *CallSession) ToggleSpeaker() bool {
	return s.toggle(&s.speakerOn)
}

func (s *CallSession) ToggleVideo() bool {
	return s.toggle(&s.videoEnabled)
}

func (s *CallSession) toggle(flag *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == domain.PhaseEnded {
		return *flag
	}
	*flag = !*flag
	return *flag
}

// assignCallID stores id if none is known yet and reports whether the
// session's id matches id afterwards.
func (s *CallSession) assignCallID(id domain.CallID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callID == "" {
		s.callID = id
	}
	return s.callID == id
}

// matches reports whether an event for id concerns this session. An outgoing
// session that has not learned its id yet matches any id.
func (s *CallSession) matches(id domain.CallID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.callID == "" {
		return s.direction == domain.CallOutgoing
	}
	return s.callID == id
}

func (s *CallSession) armSetupTimer(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == domain.PhaseEnded || d <= 0 {
		return
	}
	s.setupTimer = time.AfterFunc(d, fn)
}

// transition moves the session to phase to. Entering active starts the
// ticker and cancels the setup timer; entering ended stops everything.
func (s *CallSession) transition(to domain.CallPhase, reason domain.EndReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !domain.CanTransition(s.phase, to) {
		return domain.ErrInvalidTransition
	}
	s.phase = to

	switch to {
	case domain.PhaseActive:
		s.stopSetupTimerLocked()
		s.startedAt = utils.Now()
		s.startTickerLocked()
	case domain.PhaseEnded:
		s.endReason = reason
		s.stopSetupTimerLocked()
		s.stopTickerLocked()
		close(s.done)
	}
	return nil
}

func (s *CallSession) startTickerLocked() {
	if s.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	s.tickStop = stop

	go func() {
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.phase == domain.PhaseActive {
					s.elapsed++
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *CallSession) stopTickerLocked() {
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

func (s *CallSession) stopSetupTimerLocked() {
	if s.setupTimer != nil {
		s.setupTimer.Stop()
		s.setupTimer = nil
	}
}

func (s *CallSession) talkTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startedAt.IsZero() {
		return 0
	}
	return time.Duration(s.elapsed) * s.tickInterval
}
