// Package sshprep prepares per-VM SSH access for sync activation:
// generating an ed25519 keypair, installing it into the guest's
// authorized_keys, managing the host's SSH alias file, and running
// one-shot remote commands for preflight probes and guest path prep.
package sshprep

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

// Creds identifies which account to authenticate as over SSH.
type Creds struct {
	User     string
	Password string
}

// KeyManager is the capability surface sync activation needs for SSH prep.
type KeyManager interface {
	// EnsureKeypair generates an ed25519 keypair at dir/id_ed25519{,.pub}
	// if absent, idempotently. Returns the public key in authorized_keys
	// line format.
	EnsureKeypair(dir string) (pubLine string, err error)
	// ProbeAndRun authenticates to host:22 with creds and runs cmd,
	// returning combined stdout/stderr.
	ProbeAndRun(host string, creds Creds, cmd string) (output string, err error)
	// InstallAuthorizedKey appends pubLine to the target account's
	// authorized_keys via a password-authenticated remote shell, if not
	// already present.
	InstallAuthorizedKey(host string, creds Creds, pubLine string) error
}

// Real is the crypto/ed25519 + golang.org/x/crypto/ssh backed implementation.
type Real struct {
	DialTimeout time.Duration
}

func New() *Real {
	return &Real{DialTimeout: 10 * time.Second}
}

func (r *Real) timeout() time.Duration {
	if r.DialTimeout > 0 {
		return r.DialTimeout
	}
	return 10 * time.Second
}

func (r *Real) EnsureKeypair(dir string) (string, error) {
	privPath := filepath.Join(dir, "id_ed25519")
	pubPath := filepath.Join(dir, "id_ed25519.pub")

	if existing, err := os.ReadFile(pubPath); err == nil {
		if _, err := os.Stat(privPath); err == nil {
			return strings.TrimSpace(string(existing)), nil
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", clawerr.Wrap(clawerr.Precondition, err, "could not create %s", dir)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", clawerr.Wrap(clawerr.Precondition, err, "could not generate SSH keypair")
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", clawerr.Wrap(clawerr.Precondition, err, "could not encode SSH public key")
	}
	pubLine := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))

	privPEM, err := marshalEd25519PrivateKey(priv)
	if err != nil {
		return "", clawerr.Wrap(clawerr.Precondition, err, "could not encode SSH private key")
	}

	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return "", clawerr.Wrap(clawerr.Precondition, err, "could not write %s", privPath)
	}
	if err := os.WriteFile(pubPath, []byte(pubLine+"\n"), 0644); err != nil {
		return "", clawerr.Wrap(clawerr.Precondition, err, "could not write %s", pubPath)
	}

	return pubLine, nil
}

func (r *Real) dial(host string, creds Creds) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            creds.User,
		Auth:            []ssh.AuthMethod{ssh.Password(creds.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.timeout(),
	}

	addr := net.JoinHostPort(host, "22")
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, clawerr.Wrap(clawerr.Precondition, err, "SSH preflight as '%s' failed: %v", creds.User, err)
	}
	return client, nil
}

func (r *Real) ProbeAndRun(host string, creds Creds, cmd string) (string, error) {
	client, err := r.dial(host, creds)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", clawerr.Wrap(clawerr.Precondition, err, "SSH preflight as '%s' failed: %v", creds.User, err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(cmd)
	if err != nil {
		return string(out), clawerr.New(clawerr.RuntimeExec, "remote command failed as '%s': %s", creds.User, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

func (r *Real) InstallAuthorizedKey(host string, creds Creds, pubLine string) error {
	check := fmt.Sprintf("mkdir -p ~/.ssh && chmod 700 ~/.ssh && touch ~/.ssh/authorized_keys && grep -qxF %q ~/.ssh/authorized_keys || echo %q >> ~/.ssh/authorized_keys", pubLine, pubLine)
	_, err := r.ProbeAndRun(host, creds, check)
	return err
}

var _ KeyManager = (*Real)(nil)

// marshalEd25519PrivateKey encodes key in the openssh-key-v1 PEM format
// understood by ssh-keygen, ssh, and mutagen's own SSH transport. x/crypto's
// ssh package (at the version pinned here) only marshals public keys, so
// the private-key side follows the format's own spec directly.
func marshalEd25519PrivateKey(key ed25519.PrivateKey) ([]byte, error) {
	const magic = "openssh-key-v1\x00"

	pub := key.Public().(ed25519.PublicKey)

	pk1 := struct {
		Check1  uint32
		Check2  uint32
		Keytype string
		Pub     []byte
		Priv    []byte
		Comment string
		Pad     []byte `ssh:"rest"`
	}{}

	ci, err := randUint32()
	if err != nil {
		return nil, err
	}
	pk1.Check1 = ci
	pk1.Check2 = ci
	pk1.Keytype = ssh.KeyAlgoED25519
	pk1.Pub = pub
	pk1.Priv = append(append([]byte{}, key...))
	pk1.Comment = "clawbox"

	blockLen := ed25519.PrivateKeySize + 4 + len(pk1.Comment) + 8 + 4 + len(ssh.KeyAlgoED25519) + 4 + ed25519.PublicKeySize + 4
	padLen := (8 - (blockLen % 8)) % 8
	for i := 0; i < padLen; i++ {
		pk1.Pad = append(pk1.Pad, byte(i+1))
	}

	w := sshStructWriter{}
	w.writeUint32(pk1.Check1)
	w.writeUint32(pk1.Check2)
	w.writeString(pk1.Keytype)
	w.writeBytes(pk1.Pub)
	w.writeBytes(pk1.Priv)
	w.writeString(pk1.Comment)
	w.buf = append(w.buf, pk1.Pad...)

	outer := sshStructWriter{}
	outer.buf = append(outer.buf, []byte(magic)...)
	outer.writeString("none") // cipher
	outer.writeString("none") // kdf
	outer.writeBytes(nil)     // kdf options
	outer.writeUint32(1)      // number of keys
	outer.writeBytes(marshalEd25519PublicKeyBlob(pub))
	outer.writeBytes(w.buf)

	block := &pem.Block{Type: "OPENSSH PRIVATE KEY", Bytes: outer.buf}
	return pem.EncodeToMemory(block), nil
}

func marshalEd25519PublicKeyBlob(pub ed25519.PublicKey) []byte {
	w := sshStructWriter{}
	w.writeString(ssh.KeyAlgoED25519)
	w.writeBytes(pub)
	return w.buf
}
