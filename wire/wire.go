// Package wire defines the cluster's wire protocol: a length-framed
// envelope carrying one of the {Cluster, Encryption, Decryption}
// top-level message kinds. Every message type implements the
// gogo/protobuf Marshaler/Unmarshaler fast-path interfaces directly
// (Marshal/Unmarshal), so proto.Marshal/proto.Unmarshal dispatch
// straight to hand-written code with no .proto/reflection step
// involved.
package wire

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sjeohp/parity/keyid"
)

// SessionId identifies one run of a threshold protocol. Encryption and
// decryption sessions live in distinct namespaces even though they
// share this type.
type SessionId [16]byte

// NewSessionId generates a random SessionId.
func NewSessionId() (SessionId, error) {
	var id SessionId
	if _, err := rand.Read(id[:]); err != nil {
		return SessionId{}, err
	}
	return id, nil
}

func (id SessionId) String() string { return hex.EncodeToString(id[:]) }

// Kind is the top-level partition of the wire protocol.
type Kind uint8

const (
	KindCluster Kind = iota
	KindEncryption
	KindDecryption
)

func (k Kind) String() string {
	switch k {
	case KindCluster:
		return "Cluster"
	case KindEncryption:
		return "Encryption"
	case KindDecryption:
		return "Decryption"
	default:
		return "Unknown"
	}
}

// ClusterKind enumerates Cluster-kind messages.
type ClusterKind uint8

const (
	ClusterKeepAlive ClusterKind = iota
)

// EncryptionKind enumerates Encryption-kind messages.
type EncryptionKind uint8

const (
	EncInitializeSession EncryptionKind = iota
	EncConfirmInitialization
	EncCompleteInitialization
	EncKeysDissemination
	EncComplaint
	EncComplaintResponse
	EncPublicKeyShare
	EncSessionError
)

// DecryptionKind enumerates Decryption-kind messages. The protocol
// mirrors Encryption's initialization message only: every decryption
// session is rejected before any richer exchange could occur (see
// SPEC_FULL.md's resolution of the decryption-path Open Question).
type DecryptionKind uint8

const (
	DecInitializeSession DecryptionKind = iota
)

// ErrUnknownKind is returned by the codec when a message's kind/sub-kind
// byte does not name a known payload type.
var ErrUnknownKind = errors.New("wire: unknown message kind")

// Message is the fast-path (de)serialization contract every payload
// type implements directly, bypassing protobuf reflection.
type Message interface {
	Reset()
	String() string
	ProtoMessage()
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// base supplies the boilerplate proto.Message methods so payload types
// need only implement Marshal/Unmarshal.
type base struct{ name string }

func (b *base) Reset()         {}
func (b *base) ProtoMessage()   {}
func (b *base) String() string { return fmt.Sprintf("wire.%s", b.name) }

// --- binary encoding helpers, in the style of message.go's Hash(). ---

func putUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func putString(buf []byte, s string) []byte {
	return putBytes(buf, []byte(s))
}

func putNodeIds(buf []byte, ids []keyid.NodeId) []byte {
	buf = putUint32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = append(buf, id.Bytes()...)
	}
	return buf
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) uint32() (uint32, error) {
	if len(r.data)-r.off < 4 {
		return 0, errors.New("wire: truncated uint32")
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if uint32(len(r.data)-r.off) < n {
		return nil, errors.New("wire: truncated bytes")
	}
	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+int(n)])
	r.off += int(n)
	return out, nil
}

func (r *reader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) sessionID() (SessionId, error) {
	var id SessionId
	if len(r.data)-r.off < len(id) {
		return id, errors.New("wire: truncated session id")
	}
	copy(id[:], r.data[r.off:r.off+len(id)])
	r.off += len(id)
	return id, nil
}

func (r *reader) nodeIds() ([]keyid.NodeId, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	out := make([]keyid.NodeId, n)
	for i := range out {
		if len(r.data)-r.off < keyid.Size {
			return nil, errors.New("wire: truncated node id")
		}
		copy(out[i][:], r.data[r.off:r.off+keyid.Size])
		r.off += keyid.Size
	}
	return out, nil
}
