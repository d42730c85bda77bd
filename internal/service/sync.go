package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emrgen/pagenote/internal/compress"
	"github.com/emrgen/pagenote/internal/crypto"
	"github.com/emrgen/pagenote/internal/document"
	"github.com/emrgen/pagenote/internal/kv"
	"github.com/emrgen/pagenote/internal/provider"
	"github.com/sirupsen/logrus"
)

// Provider policies handled by the coordinator itself.
const (
	ProviderAll  = "all"
	ProviderNone = "none"
)

// Event types broadcast to UI surfaces.
const (
	EventSyncComplete  = "SYNC_COMPLETE"
	EventQuotaExceeded = "QUOTA_EXCEEDED"
)

// DefaultDebounce is the quiet period after a change before a push fires.
const DefaultDebounce = 5 * time.Second

// pullOrder is the fixed priority chain on pull; the first provider with a
// usable payload wins, also under the "all" policy.
var pullOrder = []string{provider.NameChunked, provider.NameDrive, provider.NameGist, provider.NameBitable}

// Broadcaster fans an event out to every connected consumer. Delivery is
// fire-and-forget; unreachable consumers are dropped silently.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any) {}

// NewSyncService wires the coordinator over the document store, the shared
// settings record and the configured backend adapters.
func NewSyncService(docs *DocumentService, settings *kv.SettingsStore, keys *crypto.KeyManager, codec compress.Compress, providers []provider.Provider, broadcaster Broadcaster, debounce time.Duration) *SyncService {
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &SyncService{
		docs:        docs,
		settings:    settings,
		keys:        keys,
		codec:       codec,
		providers:   byName,
		broadcaster: broadcaster,
		debounce:    debounce,
	}
}

// SyncService drives push/pull against the configured providers, debounces
// change-triggered pushes and merges pulled documents into the local copy.
type SyncService struct {
	docs        *DocumentService
	settings    *kv.SettingsStore
	keys        *crypto.KeyManager
	codec       compress.Compress
	providers   map[string]provider.Provider
	broadcaster Broadcaster
	debounce    time.Duration

	mu            sync.Mutex
	timer         *time.Timer
	quotaNotified bool

	// pushMu serializes push cycles: a debounce expiry during a running
	// push waits for it instead of re-entering.
	pushMu sync.Mutex
}

// SchedulePush arms the trailing debounce timer; calling it again before
// expiry resets the timer, so a burst of changes collapses into one push.
// Non-blocking.
func (s *SyncService) SchedulePush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.PushToRemote(context.Background()); err != nil {
			logrus.Errorf("scheduled push failed: %v", err)
		}
	})
}

// Stop cancels any pending debounced push.
func (s *SyncService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// PushToRemote pushes the current document to the selected provider(s).
// Under "all" every adapter runs and each failure stays isolated from the
// others. The chunked adapter's quota failure is swallowed after a one-time
// user notification; other failures are joined into the returned error so a
// force-sync caller sees them. Broadcasts SyncComplete when done.
func (s *SyncService) PushToRemote(ctx context.Context) error {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	selected := s.selectedProviders(settings.SyncProvider)
	if len(selected) == 0 {
		return nil
	}

	doc := s.docs.Load(ctx)
	plaintext, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	encrypted, err := s.encryptPayload(ctx, plaintext)
	if err != nil {
		return err
	}

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, p := range selected {
		payload := encrypted
		if p.Name() == provider.NameBitable {
			// The tabular provider stores human-readable rows; it is the one
			// provider that receives the plaintext document.
			payload = plaintext
		}
		wg.Add(1)
		go func(p provider.Provider, payload []byte) {
			defer wg.Done()
			err := p.Push(ctx, payload)
			switch {
			case err == nil:
				if p.Name() == provider.NameChunked {
					s.resetQuotaNotice()
				}
			case errors.Is(err, provider.ErrQuotaExceeded):
				logrus.Warnf("push to %s: %v", p.Name(), err)
				s.notifyQuotaExceeded()
			default:
				logrus.Errorf("push to %s failed: %v", p.Name(), err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				errMu.Unlock()
			}
		}(p, payload)
	}
	wg.Wait()

	s.broadcaster.Broadcast(EventSyncComplete, map[string]string{"direction": "push"})
	return errors.Join(errs...)
}

// PullFromRemote walks the provider priority chain until one returns a
// usable payload, merges it into the local document without re-arming the
// push debounce, and broadcasts SyncComplete. Unreachable or empty remotes
// are not errors.
func (s *SyncService) PullFromRemote(ctx context.Context) error {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	selection := settings.SyncProvider
	if selection == ProviderNone {
		return nil
	}

	remote := s.fetchRemote(ctx, selection)
	if remote == nil {
		return nil
	}

	changed, err := s.docs.MergeRemote(ctx, remote)
	if err != nil {
		return fmt.Errorf("save merged document: %w", err)
	}
	if changed {
		logrus.Info("merged remote changes into local document")
	}
	s.broadcaster.Broadcast(EventSyncComplete, map[string]string{"direction": "pull"})
	return nil
}

func (s *SyncService) fetchRemote(ctx context.Context, selection string) *document.Document {
	for _, name := range pullOrder {
		if selection != ProviderAll && selection != name {
			continue
		}
		p, ok := s.providers[name]
		if !ok {
			continue
		}
		payload, err := p.Pull(ctx)
		if err != nil {
			logrus.Warnf("pull from %s: %v", name, err)
			continue
		}
		if payload == nil {
			continue
		}

		var decoded []byte
		if name == provider.NameBitable {
			decoded = payload
		} else {
			decoded, err = s.decryptPayload(ctx, payload)
			if err != nil {
				logrus.Debugf("pull from %s: undecryptable payload: %v", name, err)
				continue
			}
		}
		remote := &document.Document{}
		if err := json.Unmarshal(decoded, remote); err != nil {
			logrus.Debugf("pull from %s: corrupt document: %v", name, err)
			continue
		}
		return remote
	}
	return nil
}

func (s *SyncService) encryptPayload(ctx context.Context, plaintext []byte) ([]byte, error) {
	encoded, err := s.codec.Encode(plaintext)
	if err != nil {
		return nil, err
	}
	key, err := s.keys.GetOrCreateKey(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := crypto.Encrypt(encoded, key)
	if err != nil {
		return nil, err
	}
	return []byte(blob), nil
}

func (s *SyncService) decryptPayload(ctx context.Context, payload []byte) ([]byte, error) {
	key, err := s.keys.GetOrCreateKey(ctx)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.Decrypt(string(payload), key)
	if err != nil {
		return nil, err
	}
	return s.codec.Decode(plaintext)
}

func (s *SyncService) selectedProviders(selection string) []provider.Provider {
	switch selection {
	case ProviderNone:
		return nil
	case ProviderAll:
		out := make([]provider.Provider, 0, len(s.providers))
		for _, name := range pullOrder {
			if p, ok := s.providers[name]; ok {
				out = append(out, p)
			}
		}
		return out
	default:
		if p, ok := s.providers[selection]; ok {
			return []provider.Provider{p}
		}
		logrus.Warnf("unknown sync provider %q, skipping push", selection)
		return nil
	}
}

// notifyQuotaExceeded raises the user-facing notice once per quota episode;
// it re-arms after the next successful chunked push.
func (s *SyncService) notifyQuotaExceeded() {
	s.mu.Lock()
	notified := s.quotaNotified
	s.quotaNotified = true
	s.mu.Unlock()
	if notified {
		return
	}
	s.broadcaster.Broadcast(EventQuotaExceeded, map[string]string{
		"message": "sync storage is almost full; consider switching to the drive or gist provider",
	})
}

func (s *SyncService) resetQuotaNotice() {
	s.mu.Lock()
	s.quotaNotified = false
	s.mu.Unlock()
}
