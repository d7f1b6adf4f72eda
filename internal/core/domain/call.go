package domain

import "time"

// CallPhase is the lifecycle state of a single call attempt.
type CallPhase string

const (
	PhaseRinging CallPhase = "ringing"
	// PhaseConnecting covers a local accept that is queued behind a dropped
	// connection and not yet delivered.
	PhaseConnecting CallPhase = "connecting"
	PhaseActive     CallPhase = "active"
	PhaseEnded      CallPhase = "ended"
)

var callTransitions = map[CallPhase][]CallPhase{
	PhaseRinging:    {PhaseConnecting, PhaseActive, PhaseEnded},
	PhaseConnecting: {PhaseActive, PhaseEnded},
	PhaseActive:     {PhaseEnded},
}

// CanTransition reports whether from -> to is a legal phase change.
func CanTransition(from, to CallPhase) bool {
	for _, next := range callTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsLive is true for every phase except Ended.
func (p CallPhase) IsLive() bool {
	return p != PhaseEnded && p != ""
}

type CallDirection string

const (
	CallOutgoing CallDirection = "outgoing"
	CallIncoming CallDirection = "incoming"
)

// EndReason explains why a call reached PhaseEnded.
type EndReason string

const (
	EndLocalHangup EndReason = "local_hangup"
	EndRejected    EndReason = "rejected"
	EndRemoteEnded EndReason = "remote_ended"
	EndMissed      EndReason = "missed"
	EndSuperseded  EndReason = "superseded"
	EndDetached    EndReason = "detached"
)

// CallSnapshot is a point-in-time copy of a call session.
type CallSnapshot struct {
	CallID         CallID        `json:"callId,omitempty"`
	PeerID         UserID        `json:"peerId"`
	PeerName       string        `json:"peerName,omitempty"`
	IsVideo        bool          `json:"isVideo"`
	Direction      CallDirection `json:"direction"`
	Phase          CallPhase     `json:"phase"`
	StartedAt      time.Time     `json:"startedAt,omitempty"`
	ElapsedSeconds int64         `json:"elapsedSeconds"`
	Duration       string        `json:"duration"`
	Muted          bool          `json:"muted"`
	SpeakerOn      bool          `json:"speakerOn"`
	VideoEnabled   bool          `json:"videoEnabled"`
	EndReason      EndReason     `json:"endReason,omitempty"`
}

type CallNoticeKind string

const (
	NoticeIncomingCall CallNoticeKind = "incoming_call"
	NoticeCallAccepted CallNoticeKind = "call_accepted"
	NoticeCallEnded    CallNoticeKind = "call_ended"
)

// CallNotice is what the hosting UI receives to show an alert or navigate.
type CallNotice struct {
	Kind CallNoticeKind
	Call CallSnapshot
}
