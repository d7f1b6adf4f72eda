package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campusconnect/internal/core/domain"
	"campusconnect/internal/core/ports"
	"campusconnect/internal/infrastructure/monitoring"
	"campusconnect/pkg/config"
	"campusconnect/pkg/logger"
	"campusconnect/pkg/tracing"
	"campusconnect/pkg/validation"

	"go.uber.org/zap"
)

// CallService runs the call state machine for the local user. It holds at
// most one live session and reconciles local actions with remote signaling.
type CallService struct {
	provider     ports.ConnectionProvider
	localUser    domain.UserID
	setupTimeout time.Duration
	tickInterval time.Duration
	metrics      *monitoring.PrometheusCollector
	logger       *zap.SugaredLogger

	mu       sync.Mutex
	conn     ports.Connection
	subs     []subscription
	session  *CallSession
	observer ports.CallObserver
}

var _ ports.CallService = (*CallService)(nil)

func NewCallService(provider ports.ConnectionProvider, cfg *config.Config, metrics *monitoring.PrometheusCollector, log *zap.SugaredLogger) *CallService {
	if log == nil {
		log = logger.Nop()
	}
	tick := cfg.Call.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	return &CallService{
		provider:     provider,
		localUser:    domain.UserID(cfg.Client.UserID),
		setupTimeout: cfg.Call.SetupTimeout,
		tickInterval: tick,
		metrics:      metrics,
		logger:       log.With("component", "call_service"),
	}
}

// SetObserver installs the callback that receives call notices.
func (s *CallService) SetObserver(fn ports.CallObserver) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Attach subscribes to call signaling on the mounted connection.
func (s *CallService) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	conn := s.provider.Connection()
	if conn == nil {
		return fmt.Errorf("attach call service: %w", domain.ErrNotConnected)
	}

	s.conn = conn
	s.subs = []subscription{
		{domain.EventCallRequest, conn.On(domain.EventCallRequest, s.handleCallRequest)},
		{domain.EventCallAccepted, conn.On(domain.EventCallAccepted, s.handleCallAccepted)},
		{domain.EventCallRejected, conn.On(domain.EventCallRejected, s.handleCallRejected)},
		{domain.EventCallEnded, conn.On(domain.EventCallEnded, s.handleCallEnded)},
		{domain.EventConnect, conn.On(domain.EventConnect, s.handleConnect)},
	}
	return nil
}

// Detach drops all subscriptions and ends a live session locally.
func (s *CallService) Detach() {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return
	}
	for _, sub := range s.subs {
		s.conn.Off(sub.event, sub.id)
	}
	s.subs = nil
	s.conn = nil

	var notices []domain.CallNotice
	if sess := s.session; sess != nil && sess.Phase().IsLive() {
		notices = s.endLocked(sess, domain.EndDetached)
	}
	observer := s.observer
	s.mu.Unlock()

	deliver(observer, notices)
}

// Current returns the most recent session, live or ended.
func (s *CallService) Current() (domain.CallSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return domain.CallSnapshot{}, false
	}
	return s.session.Snapshot(), true
}

// Session returns the most recent session, or nil.
func (s *CallService) Session() *CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// StartCall places an outgoing call. The session rings without a call id
// until the peer accepts.
func (s *CallService) StartCall(ctx context.Context, peerID domain.UserID, isVideo bool) (domain.CallSnapshot, error) {
	ctx, span := tracing.TraceCallOperation(ctx, "start", string(peerID))
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.UserIDKey.String(string(s.localUser)))

	if err := validation.ValidateID(string(peerID), "peer id"); err != nil {
		return domain.CallSnapshot{}, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if peerID == s.localUser {
		return domain.CallSnapshot{}, fmt.Errorf("%w: cannot call yourself", domain.ErrInvalidPayload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil && s.session.Phase().IsLive() {
		return domain.CallSnapshot{}, domain.ErrCallInProgress
	}
	if s.conn == nil || !s.provider.IsConnected() {
		return domain.CallSnapshot{}, domain.ErrNotConnected
	}

	if _, err := s.conn.Emit(ctx, domain.EventCallRequest, domain.CallRequestPayload{
		ReceiverID:  peerID,
		IsVideoCall: isVideo,
	}); err != nil {
		tracing.RecordError(ctx, err)
		return domain.CallSnapshot{}, fmt.Errorf("send call request: %w", err)
	}

	sess := newCallSession(domain.CallOutgoing, "", peerID, "", isVideo, s.tickInterval)
	s.session = sess
	s.metrics.RecordCallTransition(domain.PhaseRinging)
	s.armSetupTimer(sess)

	s.logger.Infow("outgoing call ringing", "peer_id", peerID, "video", isVideo)
	tracing.AddSpanAttributes(ctx, tracing.CallPhaseKey.String(string(domain.PhaseRinging)))
	return sess.Snapshot(), nil
}

// Accept answers the ringing inbound call. If the accept could only be
// queued, the session waits in connecting until the link comes back.
func (s *CallService) Accept(ctx context.Context) (domain.CallSnapshot, error) {
	s.mu.Lock()
	sess := s.session
	if sess == nil || !sess.Phase().IsLive() {
		s.mu.Unlock()
		return domain.CallSnapshot{}, domain.ErrNoActiveCall
	}
	snap := sess.Snapshot()

	ctx, span := tracing.TraceCallOperation(ctx, "accept", string(snap.PeerID))
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.CallIDKey.String(string(snap.CallID)))

	if snap.Direction != domain.CallIncoming || snap.Phase != domain.PhaseRinging {
		s.mu.Unlock()
		return snap, domain.ErrInvalidTransition
	}
	if s.conn == nil {
		s.mu.Unlock()
		return snap, domain.ErrNotConnected
	}

	status, err := s.conn.Emit(ctx, domain.EventCallAccepted, domain.CallControlPayload{CallID: snap.CallID})
	if err != nil {
		s.mu.Unlock()
		tracing.RecordError(ctx, err)
		return snap, fmt.Errorf("send call accept: %w", err)
	}

	next := domain.PhaseActive
	if status == domain.DeliveryQueued {
		next = domain.PhaseConnecting
	}
	s.transitionLocked(sess, next)
	observer := s.observer
	s.mu.Unlock()

	s.logger.Infow("call accepted", "call_id", snap.CallID, "phase", next, "delivery", status)
	if next == domain.PhaseActive {
		deliver(observer, []domain.CallNotice{{Kind: domain.NoticeCallAccepted, Call: sess.Snapshot()}})
	}
	return sess.Snapshot(), nil
}

// Hangup rejects a ringing call or ends an active one, then ends the
// session locally whatever the delivery outcome.
func (s *CallService) Hangup(ctx context.Context) (domain.CallSnapshot, error) {
	s.mu.Lock()
	sess := s.session
	if sess == nil || !sess.Phase().IsLive() {
		s.mu.Unlock()
		return domain.CallSnapshot{}, domain.ErrNoActiveCall
	}
	snap := sess.Snapshot()

	ctx, span := tracing.TraceCallOperation(ctx, "hangup", string(snap.PeerID))
	defer span.End()

	event := domain.EventCallRejected
	payload := domain.CallControlPayload{CallID: snap.CallID}
	if snap.Phase == domain.PhaseActive {
		event = domain.EventCallEnded
	} else if snap.CallID == "" {
		// Cancelling our own request before the server assigned an id.
		payload.ReceiverID = snap.PeerID
	}

	if s.conn != nil {
		if _, err := s.conn.Emit(ctx, event, payload); err != nil {
			tracing.RecordError(ctx, err)
			s.logger.Warnw("hangup not delivered", "call_id", snap.CallID, "event", event, "error", err)
		}
	}

	notices := s.endLocked(sess, domain.EndLocalHangup)
	observer := s.observer
	s.mu.Unlock()

	s.logger.Infow("call hung up", "call_id", snap.CallID, "from_phase", snap.Phase)
	deliver(observer, notices)
	return sess.Snapshot(), nil
}

// Toggle flips one local control flag: mute, speaker or video.
func (s *CallService) Toggle(name string) (domain.CallSnapshot, error) {
	sess := s.Session()
	if sess == nil || !sess.Phase().IsLive() {
		return domain.CallSnapshot{}, domain.ErrNoActiveCall
	}

	switch name {
	case "mute":
		sess.ToggleMute()
	case "speaker":
		sess.ToggleSpeaker()
	case "video":
		sess.ToggleVideo()
	default:
		return domain.CallSnapshot{}, fmt.Errorf("%w: unknown toggle %q", domain.ErrInvalidPayload, name)
	}
	return sess.Snapshot(), nil
}

func (s *CallService) handleCallRequest(ev domain.Event) {
	req, ok := ev.(domain.CallRequestEvent)
	if !ok {
		return
	}

	s.mu.Lock()
	var notices []domain.CallNotice
	cur := s.session

	if cur != nil && cur.Phase().IsLive() {
		snap := cur.Snapshot()
		switch {
		case snap.CallID == req.CallID:
			s.mu.Unlock()
			return

		case s.isGlare(snap, req):
			if s.localUser < req.CallerID {
				s.logger.Infow("simultaneous call, keeping our request", "peer_id", req.CallerID, "call_id", req.CallID)
				s.rejectLocked(req.CallID)
				s.mu.Unlock()
				return
			}
			s.logger.Infow("simultaneous call, yielding to peer", "peer_id", req.CallerID, "call_id", req.CallID)
			notices = append(notices, s.endLocked(cur, domain.EndSuperseded)...)

		default:
			s.logger.Infow("busy, rejecting inbound call", "caller_id", req.CallerID, "call_id", req.CallID)
			s.rejectLocked(req.CallID)
			s.mu.Unlock()
			return
		}
	}

	sess := newCallSession(domain.CallIncoming, req.CallID, req.CallerID, req.CallerName, req.IsVideoCall, s.tickInterval)
	s.session = sess
	s.metrics.RecordCallTransition(domain.PhaseRinging)
	s.armSetupTimer(sess)
	notices = append(notices, domain.CallNotice{Kind: domain.NoticeIncomingCall, Call: sess.Snapshot()})
	observer := s.observer
	s.mu.Unlock()

	s.logger.Infow("incoming call ringing", "call_id", req.CallID, "caller_id", req.CallerID, "video", req.IsVideoCall)
	deliver(observer, notices)
}

// isGlare reports whether req crossed our own unanswered request to the same peer.
func (s *CallService) isGlare(cur domain.CallSnapshot, req domain.CallRequestEvent) bool {
	return cur.Direction == domain.CallOutgoing &&
		cur.Phase == domain.PhaseRinging &&
		cur.CallID == "" &&
		cur.PeerID == req.CallerID
}

func (s *CallService) handleCallAccepted(ev domain.Event) {
	acc, ok := ev.(domain.CallAcceptedEvent)
	if !ok {
		return
	}

	s.mu.Lock()
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return
	}
	snap := sess.Snapshot()

	switch {
	case snap.Direction == domain.CallOutgoing && snap.Phase == domain.PhaseRinging:
		if !sess.assignCallID(acc.CallID) {
			s.mu.Unlock()
			s.logger.Debugw("ignoring accept for another call", "call_id", acc.CallID, "current", snap.CallID)
			return
		}
	case snap.Phase == domain.PhaseConnecting && snap.CallID == acc.CallID:
		// Server confirmed the accept we queued.
	default:
		s.mu.Unlock()
		return
	}

	s.transitionLocked(sess, domain.PhaseActive)
	observer := s.observer
	s.mu.Unlock()

	s.logger.Infow("call active", "call_id", acc.CallID)
	deliver(observer, []domain.CallNotice{{Kind: domain.NoticeCallAccepted, Call: sess.Snapshot()}})
}

func (s *CallService) handleCallRejected(ev domain.Event) {
	rej, ok := ev.(domain.CallRejectedEvent)
	if !ok {
		return
	}
	s.endFromRemote(rej.CallID, domain.EndRejected, domain.PhaseRinging, domain.PhaseConnecting)
}

func (s *CallService) handleCallEnded(ev domain.Event) {
	end, ok := ev.(domain.CallEndedEvent)
	if !ok {
		return
	}
	s.endFromRemote(end.CallID, domain.EndRemoteEnded, domain.PhaseRinging, domain.PhaseConnecting, domain.PhaseActive)
}

// handleConnect promotes a session whose accept was queued while offline;
// the outbox has delivered it by the time connect is dispatched.
func (s *CallService) handleConnect(domain.Event) {
	s.mu.Lock()
	sess := s.session
	if sess == nil || sess.Phase() != domain.PhaseConnecting {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(sess, domain.PhaseActive)
	observer := s.observer
	s.mu.Unlock()

	s.logger.Infow("queued accept delivered, call active", "call_id", sess.CallID())
	deliver(observer, []domain.CallNotice{{Kind: domain.NoticeCallAccepted, Call: sess.Snapshot()}})
}

func (s *CallService) endFromRemote(id domain.CallID, reason domain.EndReason, from ...domain.CallPhase) {
	s.mu.Lock()
	sess := s.session
	if sess == nil || !sess.matches(id) || !phaseIn(sess.Phase(), from) {
		s.mu.Unlock()
		return
	}
	sess.assignCallID(id)
	notices := s.endLocked(sess, reason)
	observer := s.observer
	s.mu.Unlock()

	s.logger.Infow("call ended by peer", "call_id", id, "reason", reason)
	deliver(observer, notices)
}

func (s *CallService) armSetupTimer(sess *CallSession) {
	sess.armSetupTimer(s.setupTimeout, func() { s.expire(sess) })
}

// expire ends a call nobody answered. Nothing is sent.
func (s *CallService) expire(sess *CallSession) {
	s.mu.Lock()
	if s.session != sess || !phaseIn(sess.Phase(), []domain.CallPhase{domain.PhaseRinging, domain.PhaseConnecting}) {
		s.mu.Unlock()
		return
	}
	notices := s.endLocked(sess, domain.EndMissed)
	observer := s.observer
	s.mu.Unlock()

	s.logger.Infow("call setup timed out", "call_id", sess.CallID(), "timeout", s.setupTimeout)
	deliver(observer, notices)
}

func (s *CallService) rejectLocked(id domain.CallID) {
	if s.conn == nil {
		return
	}
	if _, err := s.conn.Emit(context.Background(), domain.EventCallRejected, domain.CallControlPayload{CallID: id}); err != nil {
		s.logger.Warnw("could not reject inbound call", "call_id", id, "error", err)
	}
}

func (s *CallService) transitionLocked(sess *CallSession, to domain.CallPhase) {
	if err := sess.transition(to, ""); err != nil {
		s.logger.Warnw("rejected call transition", "to", to, "from", sess.Phase(), "error", err)
		return
	}
	s.metrics.RecordCallTransition(to)
}

func (s *CallService) endLocked(sess *CallSession, reason domain.EndReason) []domain.CallNotice {
	if err := sess.transition(domain.PhaseEnded, reason); err != nil {
		return nil
	}
	s.metrics.RecordCallTransition(domain.PhaseEnded)
	if talk := sess.talkTime(); talk > 0 {
		s.metrics.RecordCallDuration(talk)
	}
	s.logger.Infow("call ended",
		"call_id", sess.CallID(),
		"reason", reason,
		"duration", sess.FormattedDuration(),
	)
	return []domain.CallNotice{{Kind: domain.NoticeCallEnded, Call: sess.Snapshot()}}
}

func phaseIn(p domain.CallPhase, set []domain.CallPhase) bool {
	for _, candidate := range set {
		if p == candidate {
			return true
		}
	}
	return false
}

func deliver(observer ports.CallObserver, notices []domain.CallNotice) {
	if observer == nil {
		return
	}
	for _, n := range notices {
		observer(n)
	}
}
