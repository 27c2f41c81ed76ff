package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/auth"
	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/config"
	"github.com/koinlend/backend/internal/events"
	"github.com/koinlend/backend/internal/models"
)

const sessionTTL = 30 * 24 * time.Hour

var ErrNoSession = errors.New("no stored wallet session")

// ChainSource exposes the provider facts a session needs: which accounts
// the signer controls and what network it is attached to.
type ChainSource interface {
	Accounts() []string
	ChainID() int64
	HasAccount(address string) bool
}

type SessionService struct {
	chain ChainSource
	redis *redis.Client
	pub   events.Publisher
	cfg   *config.Config
	log   *zap.Logger
}

func NewSessionService(chain ChainSource, rdb *redis.Client, pub events.Publisher, cfg *config.Config, log *zap.Logger) *SessionService {
	return &SessionService{chain: chain, redis: rdb, pub: pub, cfg: cfg, log: log}
}

func sessionKey(address string) string {
	return "wallet:session:" + address
}

func networkName(chainID int64) string {
	switch chainID {
	case 1:
		return "mainnet"
	case 11155111:
		return "sepolia"
	default:
		return fmt.Sprintf("chain-%d", chainID)
	}
}

// Connect binds the first provider account to a session. The provider's
// current network must be one of the configured chains; otherwise no
// session is created.
func (s *SessionService) Connect(ctx context.Context) (*models.WalletSession, string, error) {
	accounts := s.chain.Accounts()
	if len(accounts) == 0 {
		return nil, "", chain.ErrNoAccounts
	}

	chainID := s.chain.ChainID()
	if !s.cfg.IsSupportedChain(chainID) {
		return nil, "", fmt.Errorf("%w: chain %d", chain.ErrUnsupportedNetwork, chainID)
	}

	sess := &models.WalletSession{
		Address:     accounts[0],
		ChainID:     chainID,
		Network:     networkName(chainID),
		ConnectedAt: time.Now().UTC(),
	}

	if err := s.store(ctx, sess); err != nil {
		return nil, "", err
	}

	token, err := auth.GenerateJWT(s.cfg.JWTSecret, sess.Address, sess.Network, s.cfg.JWTExpiration)
	if err != nil {
		return nil, "", err
	}

	s.log.Info("wallet connected",
		zap.String("address", sess.Address),
		zap.String("network", sess.Network))

	s.publish(ctx, events.EventSessionChanged, map[string]any{
		"address": sess.Address,
		"network": sess.Network,
		"action":  "connected",
	})

	return sess, token, nil
}

// Restore reloads a previously stored session. It re-checks that the
// provider still exposes the stored address and still sits on a supported
// network. On any mismatch the stored session is discarded and the caller
// stays disconnected.
func (s *SessionService) Restore(ctx context.Context, address string) (*models.WalletSession, error) {
	data, err := s.redis.Get(ctx, sessionKey(address)).Result()
	if err == redis.Nil {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	var sess models.WalletSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		s.redis.Del(ctx, sessionKey(address))
		return nil, ErrNoSession
	}

	if !s.chain.HasAccount(sess.Address) {
		s.log.Info("stored session account no longer available", zap.String("address", sess.Address))
		s.redis.Del(ctx, sessionKey(address))
		return nil, ErrNoSession
	}

	chainID := s.chain.ChainID()
	if !s.cfg.IsSupportedChain(chainID) {
		s.redis.Del(ctx, sessionKey(address))
		return nil, fmt.Errorf("%w: chain %d", chain.ErrUnsupportedNetwork, chainID)
	}

	if chainID != sess.ChainID {
		// Provider moved networks since the session was stored. Keep the
		// session but reflect the current network.
		sess.ChainID = chainID
		sess.Network = networkName(chainID)
		if err := s.store(ctx, &sess); err != nil {
			return nil, err
		}
	}

	return &sess, nil
}

func (s *SessionService) Disconnect(ctx context.Context, address string) error {
	if err := s.redis.Del(ctx, sessionKey(address)).Err(); err != nil {
		return err
	}
	s.log.Info("wallet disconnected", zap.String("address", address))
	s.publish(ctx, events.EventSessionChanged, map[string]any{
		"address": address,
		"action":  "disconnected",
	})
	return nil
}

// NetworkChanged updates the stored session in place when the provider
// reports a chain switch. The session survives the switch; downstream
// caches keyed by network are told to flush via the published event.
func (s *SessionService) NetworkChanged(ctx context.Context, address string, chainID int64) (*models.WalletSession, error) {
	if !s.cfg.IsSupportedChain(chainID) {
		return nil, fmt.Errorf("%w: chain %d", chain.ErrUnsupportedNetwork, chainID)
	}

	sess, err := s.Restore(ctx, address)
	if err != nil {
		return nil, err
	}

	sess.ChainID = chainID
	sess.Network = networkName(chainID)
	if err := s.store(ctx, sess); err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventSessionChanged, map[string]any{
		"address": sess.Address,
		"network": sess.Network,
		"action":  "network_changed",
	})

	return sess, nil
}

func (s *SessionService) store(ctx context.Context, sess *models.WalletSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, sessionKey(sess.Address), data, sessionTTL).Err()
}

func (s *SessionService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, events.StreamOperations, events.Event{Type: eventType, Payload: payload}); err != nil {
		s.log.Warn("session event publish failed", zap.Error(err))
	}
}
