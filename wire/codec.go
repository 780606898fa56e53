package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageLength bounds a single framed message, guarding the reader
// against a corrupt or hostile length prefix demanding an unbounded
// allocation.
const MaxMessageLength = 1 << 20

// frameHeaderLength is the size of the length prefix, then the kind
// and sub-kind bytes that select which Message type to decode.
const frameHeaderLength = 4 + 1 + 1

var (
	// ErrMessageTooLarge is returned when a frame's declared length
	// exceeds MaxMessageLength.
	ErrMessageTooLarge = errors.New("wire: message exceeds MaxMessageLength")
	// ErrShortFrame is returned when a frame is too small to contain
	// the kind/sub-kind header.
	ErrShortFrame = errors.New("wire: frame shorter than header")
)

// Envelope pairs a decoded Message with the kind/sub-kind byte that
// named it on the wire, so a dispatcher can switch on kind without
// re-deriving it from the concrete type.
type Envelope struct {
	Kind    Kind
	Sub     uint8
	Message Message
}

func newByKind(kind Kind, sub uint8) (Message, error) {
	switch kind {
	case KindCluster:
		switch ClusterKind(sub) {
		case ClusterKeepAlive:
			return &KeepAlive{base{"KeepAlive"}}, nil
		}
	case KindEncryption:
		switch EncryptionKind(sub) {
		case EncInitializeSession:
			return &InitializeSession{base: base{"InitializeSession"}}, nil
		case EncConfirmInitialization:
			return &ConfirmInitialization{base: base{"ConfirmInitialization"}}, nil
		case EncCompleteInitialization:
			return &CompleteInitialization{base: base{"CompleteInitialization"}}, nil
		case EncKeysDissemination:
			return &KeysDissemination{base: base{"KeysDissemination"}}, nil
		case EncComplaint:
			return &Complaint{base: base{"Complaint"}}, nil
		case EncComplaintResponse:
			return &ComplaintResponse{base: base{"ComplaintResponse"}}, nil
		case EncPublicKeyShare:
			return &PublicKeyShare{base: base{"PublicKeyShare"}}, nil
		case EncSessionError:
			return &SessionError{base: base{"SessionError"}}, nil
		}
	case KindDecryption:
		switch DecryptionKind(sub) {
		case DecInitializeSession:
			return &DecryptionInitializeSession{base: base{"DecryptionInitializeSession"}}, nil
		}
	}
	return nil, fmt.Errorf("%w: kind=%s sub=%d", ErrUnknownKind, kind, sub)
}

func kindAndSubOf(msg Message) (Kind, uint8, error) {
	switch msg.(type) {
	case *KeepAlive:
		return KindCluster, uint8(ClusterKeepAlive), nil
	case *InitializeSession:
		return KindEncryption, uint8(EncInitializeSession), nil
	case *ConfirmInitialization:
		return KindEncryption, uint8(EncConfirmInitialization), nil
	case *CompleteInitialization:
		return KindEncryption, uint8(EncCompleteInitialization), nil
	case *KeysDissemination:
		return KindEncryption, uint8(EncKeysDissemination), nil
	case *Complaint:
		return KindEncryption, uint8(EncComplaint), nil
	case *ComplaintResponse:
		return KindEncryption, uint8(EncComplaintResponse), nil
	case *PublicKeyShare:
		return KindEncryption, uint8(EncPublicKeyShare), nil
	case *SessionError:
		return KindEncryption, uint8(EncSessionError), nil
	case *DecryptionInitializeSession:
		return KindDecryption, uint8(DecInitializeSession), nil
	default:
		return 0, 0, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
}

// Encode produces the frame body (kind, sub-kind, marshaled payload)
// for msg, without the length prefix.
func Encode(msg Message) ([]byte, error) {
	kind, sub, err := kindAndSubOf(msg)
	if err != nil {
		return nil, err
	}
	body, err := msg.Marshal()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2+len(body))
	out = append(out, byte(kind), sub)
	out = append(out, body...)
	return out, nil
}

// Decode parses a frame body (as produced by Encode) into an Envelope.
func Decode(frame []byte) (*Envelope, error) {
	if len(frame) < 2 {
		return nil, ErrShortFrame
	}
	kind, sub := Kind(frame[0]), frame[1]
	msg, err := newByKind(kind, sub)
	if err != nil {
		return nil, err
	}
	if err := msg.Unmarshal(frame[2:]); err != nil {
		return nil, err
	}
	return &Envelope{Kind: kind, Sub: sub, Message: msg}, nil
}

// WriteMessage frames msg with a 4-byte little-endian length prefix
// and writes it to w, matching the connection worker's read loop
// framing.
func WriteMessage(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	if len(frame) > MaxMessageLength {
		return ErrMessageTooLarge
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(frame)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one length-prefixed frame from r and decodes it.
func ReadMessage(r io.Reader) (*Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxMessageLength {
		return nil, ErrMessageTooLarge
	}
	if n < 2 {
		return nil, ErrShortFrame
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return Decode(frame)
}
