package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bitcoinyieldbridge/go-sdk/types"
)

const sessionFile = "session.json"

// SessionStore persists the active wallet session so a restarted client can
// restore it without prompting the wallet again.
type SessionStore interface {
	SaveSession(session types.Session) error
	GetSession() (*types.Session, error)
	DeleteSession() error
}

type sessionData struct {
	WalletAddress  string `json:"wallet_address"`
	WalletPubKey   string `json:"wallet_pubkey"`
	Network        string `json:"network"`
	AccountAddress string `json:"account_address"`
	ConnectedAt    int64  `json:"connected_at"`
}

type sessionStore struct {
	filePath string
	lock     *sync.Mutex
}

func NewSessionStore(dir string) (SessionStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session store dir: %s", err)
	}
	return &sessionStore{
		filePath: filepath.Join(dir, sessionFile),
		lock:     &sync.Mutex{},
	}, nil
}

func (s *sessionStore) SaveSession(session types.Session) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	data := sessionData{
		WalletAddress:  session.WalletAddress,
		WalletPubKey:   session.WalletPubKey,
		Network:        session.Network,
		AccountAddress: session.AccountAddress,
		ConnectedAt:    session.ConnectedAt.Unix(),
	}
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, buf, 0600)
}

func (s *sessionStore) GetSession() (*types.Session, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	buf, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var data sessionData
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, fmt.Errorf("malformed session file: %s", err)
	}
	if data.WalletAddress == "" {
		return nil, nil
	}

	return &types.Session{
		WalletAddress:  data.WalletAddress,
		WalletPubKey:   data.WalletPubKey,
		Network:        data.Network,
		AccountAddress: data.AccountAddress,
		ConnectedAt:    time.Unix(data.ConnectedAt, 0),
	}, nil
}

func (s *sessionStore) DeleteSession() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
