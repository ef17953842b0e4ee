package sshprep

import (
	"crypto/rand"
	"encoding/binary"
)

// sshStructWriter builds the big-endian, length-prefixed field encoding
// used throughout the SSH wire protocol and the openssh-key-v1 format.
type sshStructWriter struct {
	buf []byte
}

func (w *sshStructWriter) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *sshStructWriter) writeBytes(b []byte) {
	w.writeUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *sshStructWriter) writeString(s string) {
	w.writeBytes([]byte(s))
}

func randUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
