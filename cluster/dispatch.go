package cluster

import (
	"log"
	"time"

	"github.com/sjeohp/parity/keyid"
	"github.com/sjeohp/parity/sched"
	"github.com/sjeohp/parity/session"
	"github.com/sjeohp/parity/wire"
)

// keyGenerationDelay is how long a session waits in KeyCheck before
// this node contributes its own public key share.
const keyGenerationDelay = 3 * time.Second

// Dispatcher routes decoded wire envelopes to the session they belong
// to, creating encryption sessions on demand and always refusing
// decryption sessions outright.
type Dispatcher struct {
	self       keyid.NodeId
	sessions   *session.Registry
	encFactory session.Factory
	sched      *sched.Scheduler
	sendTo     func(peer keyid.NodeId, msg wire.Message)
}

// NewDispatcher builds a Dispatcher. sendTo is the hook used to enqueue
// an outbound reply or broadcast leg onto a peer's connection.
func NewDispatcher(self keyid.NodeId, sessions *session.Registry, sendTo func(keyid.NodeId, wire.Message)) *Dispatcher {
	return &Dispatcher{
		self:       self,
		sessions:   sessions,
		encFactory: session.EncryptionFactory{},
		sched:      sched.New(),
		sendTo:     sendTo,
	}
}

// Dispatch handles one decoded envelope received from peer on conn.
func (d *Dispatcher) Dispatch(peer keyid.NodeId, conn *Connection, env *wire.Envelope) {
	conn.Touch()

	switch env.Kind {
	case wire.KindCluster:
		// KeepAlive carries no payload; Touch above is the entire
		// handler.
	case wire.KindEncryption:
		d.dispatchEncryption(peer, env.Message)
	case wire.KindDecryption:
		d.refuseDecryption(peer, env.Message)
	}
}

func (d *Dispatcher) dispatchEncryption(peer keyid.NodeId, msg wire.Message) {
	if init, ok := msg.(*wire.InitializeSession); ok {
		d.createEncryptionSession(peer, init)
		return
	}

	sessionID, ok := sessionIDOf(msg)
	if !ok {
		return
	}

	s, err := d.sessions.GetEncryption(sessionID)
	if err != nil {
		d.sendTo(peer, wire.NewSessionError(sessionID, err.Error()))
		return
	}

	before := s.State()
	out, err := d.applyEncryption(s, peer, msg)
	if err != nil {
		d.sessions.RemoveEncryption(sessionID)
		d.sendTo(peer, wire.NewSessionError(sessionID, err.Error()))
		return
	}
	d.sendOutbound(s, out)

	after := s.State()
	if before != session.StateKeyCheck && after == session.StateKeyCheck {
		d.sched.PutAfter(func() { d.fireKeyGeneration(s) }, keyGenerationDelay)
	}
}

func (d *Dispatcher) applyEncryption(s session.Session, peer keyid.NodeId, msg wire.Message) ([]session.Outbound, error) {
	switch m := msg.(type) {
	case *wire.ConfirmInitialization:
		return s.OnConfirmInitialization(peer, m)
	case *wire.CompleteInitialization:
		return s.OnCompleteInitialization(peer, m)
	case *wire.KeysDissemination:
		return s.OnKeysDissemination(peer, m)
	case *wire.Complaint:
		return s.OnComplaint(peer, m)
	case *wire.ComplaintResponse:
		return s.OnComplaintResponse(peer, m)
	case *wire.PublicKeyShare:
		return s.OnPublicKeyShare(peer, m)
	case *wire.SessionError:
		err := s.OnSessionError(peer, m)
		d.sessions.RemoveEncryption(s.ID())
		return nil, err
	default:
		return nil, nil
	}
}

func (d *Dispatcher) createEncryptionSession(peer keyid.NodeId, msg *wire.InitializeSession) {
	s, err := d.encFactory.New(msg.Session, msg.Threshold, msg.Nodes, d.self)
	if err != nil {
		d.sendTo(peer, wire.NewSessionError(msg.Session, err.Error()))
		return
	}
	if err := d.sessions.PutEncryption(msg.Session, s); err != nil {
		d.sendTo(peer, wire.NewSessionError(msg.Session, err.Error()))
		return
	}
	es, ok := s.(*session.EncryptionSession)
	if !ok {
		return
	}
	d.sendTo(peer, es.Offer())
}

func (d *Dispatcher) fireKeyGeneration(s session.Session) {
	out, err := s.StartKeyGenerationPhase()
	if err != nil {
		log.Printf("cluster: session %s failed to start key generation: %v", s.ID(), err)
		d.sessions.RemoveEncryption(s.ID())
		return
	}
	d.sendOutbound(s, out)
}

func (d *Dispatcher) sendOutbound(s session.Session, out []session.Outbound) {
	for _, o := range out {
		if o.To != nil {
			d.sendTo(*o.To, o.Message)
			continue
		}
		for _, node := range s.Nodes() {
			if node == d.self {
				continue
			}
			d.sendTo(node, o.Message)
		}
	}
}

// refuseDecryption answers every decryption message with a
// SessionError and never creates a session: no decryption
// implementation exists (see session.DecryptionSession).
func (d *Dispatcher) refuseDecryption(peer keyid.NodeId, msg wire.Message) {
	sessionID, ok := sessionIDOf(msg)
	if !ok {
		return
	}
	d.sendTo(peer, wire.NewSessionError(sessionID, session.ErrInvalidStateForRequest.Error()))
}

func sessionIDOf(msg wire.Message) (wire.SessionId, bool) {
	switch m := msg.(type) {
	case *wire.InitializeSession:
		return m.Session, true
	case *wire.ConfirmInitialization:
		return m.Session, true
	case *wire.CompleteInitialization:
		return m.Session, true
	case *wire.KeysDissemination:
		return m.Session, true
	case *wire.Complaint:
		return m.Session, true
	case *wire.ComplaintResponse:
		return m.Session, true
	case *wire.PublicKeyShare:
		return m.Session, true
	case *wire.SessionError:
		return m.Session, true
	case *wire.DecryptionInitializeSession:
		return m.Session, true
	default:
		return wire.SessionId{}, false
	}
}
