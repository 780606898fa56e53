// Package handshake implements the peer authentication protocol run on
// every freshly accepted or dialed connection before it is admitted to
// the cluster: an ECDH challenge-response that proves ownership of the
// private key behind an announced NodeId, using the btcec/blake2b
// primitives (KeyAuthInit / KeyAuthChallenge / KeyAuthChallengeReply).
//
// Authentication runs in two phases over the same connection: the
// dialing side proves its identity first, then the accepting side
// proves its own. Each phase is a one-directional init/challenge/reply
// exchange; running it twice, in a fixed order, gives both sides a
// verified peer NodeId.
package handshake

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/sjeohp/parity/keyid"
)

// ChallengeSize is the length, in bytes, of the random plaintext each
// side must prove it can recover.
const ChallengeSize = 128

const handshakeTimeout = 10 * time.Second

var (
	// ErrUnacceptablePeer is returned when the peer's announced NodeId
	// is not in the caller-supplied acceptable set.
	ErrUnacceptablePeer = errors.New("handshake: peer not in acceptable set")
	// ErrChallengeFailed is returned when a peer's challenge reply does
	// not match the plaintext it was issued.
	ErrChallengeFailed = errors.New("handshake: challenge reply mismatch")
	// ErrUnexpectedMessage is returned when a handshake message arrives
	// out of the expected sequence, or with a malformed body.
	ErrUnexpectedMessage = errors.New("handshake: unexpected message")
)

// NetConnection is an authenticated connection: conn's remote party has
// proven ownership of NodeId's private key.
type NetConnection struct {
	NodeId  keyid.NodeId
	Address string
	Conn    net.Conn
}

const (
	kindAuthInit byte = iota
	kindAuthChallenge
	kindAuthChallengeReply
)

func writeFrame(conn net.Conn, kind byte, body []byte) error {
	conn.SetWriteDeadline(time.Now().Add(handshakeTimeout))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)+1))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := conn.Write([]byte{kind}); err != nil {
		return err
	}
	_, err := conn.Write(body)
	return err
}

func readFrame(conn net.Conn, want byte) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n == 0 || n > 4096 {
		return nil, ErrUnexpectedMessage
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	if buf[0] != want {
		return nil, ErrUnexpectedMessage
	}
	return buf[1:], nil
}

func deriveKey(secret []byte) [32]byte {
	return blake2b.Sum256(secret)
}

func encryptChallenge(key [32]byte, plainText []byte) (cipherText, iv []byte, err error) {
	iv = make([]byte, aes.BlockSize)
	if _, err = io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, err
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nil, err
	}
	cipherText = make([]byte, len(plainText))
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(cipherText, plainText)
	return cipherText, iv, nil
}

func decrypt(key [32]byte, iv, cipherText []byte) []byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	plainText := make([]byte, len(cipherText))
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(plainText, cipherText)
	return plainText
}

// proveIdentity runs the prover's half of one authentication phase:
// announce self's NodeId, answer the resulting challenge.
func proveIdentity(conn net.Conn, self *keyid.KeyPair) error {
	myID := self.NodeId()
	if err := writeFrame(conn, kindAuthInit, myID.Bytes()); err != nil {
		return err
	}

	body, err := readFrame(conn, kindAuthChallenge)
	if err != nil {
		return err
	}
	if len(body) < keyid.Size+aes.BlockSize {
		return ErrUnexpectedMessage
	}
	ephemeralID, err := keyid.Parse(body[:keyid.Size])
	if err != nil {
		return err
	}
	iv := body[keyid.Size : keyid.Size+aes.BlockSize]
	cipherText := body[keyid.Size+aes.BlockSize:]

	ephemeralPub, err := ephemeralID.PublicKey()
	if err != nil {
		return err
	}
	secret := keyid.ECDH(self.Private, ephemeralPub)
	plainText := decrypt(deriveKey(secret), iv, cipherText)

	return writeFrame(conn, kindAuthChallengeReply, plainText)
}

// verifyIdentity runs the verifier's half of one authentication phase:
// receive the peer's announced NodeId, check it is acceptable, issue a
// challenge only the true key owner can answer.
func verifyIdentity(conn net.Conn, acceptable map[keyid.NodeId]struct{}) (keyid.NodeId, error) {
	body, err := readFrame(conn, kindAuthInit)
	if err != nil {
		return keyid.NodeId{}, err
	}
	peerID, err := keyid.Parse(body)
	if err != nil {
		return keyid.NodeId{}, err
	}
	if _, ok := acceptable[peerID]; !ok {
		return keyid.NodeId{}, ErrUnacceptablePeer
	}
	peerPub, err := peerID.PublicKey()
	if err != nil {
		return keyid.NodeId{}, err
	}

	ephemeral, err := keyid.Generate()
	if err != nil {
		return keyid.NodeId{}, err
	}
	secret := keyid.ECDH(ephemeral.Private, peerPub)
	key := deriveKey(secret)

	plainText := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(rand.Reader, plainText); err != nil {
		return keyid.NodeId{}, err
	}
	cipherText, iv, err := encryptChallenge(key, plainText)
	if err != nil {
		return keyid.NodeId{}, err
	}

	ephemeralID := ephemeral.NodeId()
	challengeBody := make([]byte, 0, keyid.Size+aes.BlockSize+len(cipherText))
	challengeBody = append(challengeBody, ephemeralID.Bytes()...)
	challengeBody = append(challengeBody, iv...)
	challengeBody = append(challengeBody, cipherText...)
	if err := writeFrame(conn, kindAuthChallenge, challengeBody); err != nil {
		return keyid.NodeId{}, err
	}

	reply, err := readFrame(conn, kindAuthChallengeReply)
	if err != nil {
		return keyid.NodeId{}, err
	}
	if !bytes.Equal(plainText, reply) {
		return keyid.NodeId{}, ErrChallengeFailed
	}
	return peerID, nil
}

// Authenticate runs the full two-phase handshake over conn. initiator
// selects which side dials first: per the connection tie-break rule,
// the side with the lower NodeId always dials and so proves its
// identity first here. peer's NodeId must be a member of acceptable or
// the handshake is aborted.
func Authenticate(conn net.Conn, self *keyid.KeyPair, acceptable map[keyid.NodeId]struct{}, initiator bool) (*NetConnection, error) {
	var peerID keyid.NodeId
	var err error

	if initiator {
		if err = proveIdentity(conn, self); err != nil {
			return nil, err
		}
		if peerID, err = verifyIdentity(conn, acceptable); err != nil {
			return nil, err
		}
	} else {
		if peerID, err = verifyIdentity(conn, acceptable); err != nil {
			return nil, err
		}
		if err = proveIdentity(conn, self); err != nil {
			return nil, err
		}
	}

	return &NetConnection{NodeId: peerID, Address: conn.RemoteAddr().String(), Conn: conn}, nil
}
