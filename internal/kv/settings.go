package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const settingsSlot = "_pagenote_settings"

// FeishuConfig holds the bitable provider credentials and table location.
type FeishuConfig struct {
	AppID     string `json:"appId"`
	AppSecret string `json:"appSecret"`
	AppToken  string `json:"appToken"`
	TableID   string `json:"tableId"`
}

// Settings is the shared settings record in the synced scope. Provider
// choice and credentials live here so every device of an installation sees
// the same sync configuration.
type Settings struct {
	Position      string        `json:"position"`
	DisplayMode   string        `json:"displayMode"`
	SyncProvider  string        `json:"syncProvider"`
	Theme         string        `json:"theme,omitempty"`
	GithubToken   string        `json:"githubToken,omitempty"`
	Feishu        *FeishuConfig `json:"feishuConfig,omitempty"`
	DriveEnabled  bool          `json:"driveEnabled"`
	OffsetDomains []string      `json:"offsetDomains"`

	// GistID caches the discovered gist resource id; refreshed by the gist
	// provider when the cached id goes stale.
	GistID string `json:"_githubGistId,omitempty"`
}

// DefaultSettings mirrors a fresh installation. The offset domain list is
// consumed by UI surfaces only; the core just stores it.
func DefaultSettings() Settings {
	return Settings{
		Position:     "top-right",
		DisplayMode:  "collapsed",
		SyncProvider: "chunked",
		OffsetDomains: []string{
			"github.com", "gitlab.com", "google.com", "youtube.com",
			"chatgpt.com", "chat.openai.com", "claude.ai", "gemini.google.com",
			"perplexity.ai", "huggingface.co", "stackoverflow.com",
			"vercel.com", "netlify.com", "notion.so", "figma.com",
			"discord.com", "x.com", "twitter.com", "reddit.com", "linkedin.com",
			"v2ex.com", "juejin.cn", "zhihu.com", "bilibili.com",
			"kimi.moonshot.cn", "doubao.com", "colab.research.google.com",
			"greasyfork.org", "codepen.io", "replit.com", "deepseek.com",
		},
	}
}

// SettingsStore reads and writes the settings record in the synced scope.
type SettingsStore struct {
	store Store
}

func NewSettingsStore(store Store) *SettingsStore {
	return &SettingsStore{store: store}
}

// Get returns the stored settings layered over defaults; an absent or
// unreadable record yields the defaults.
func (s *SettingsStore) Get(ctx context.Context) (Settings, error) {
	settings := DefaultSettings()
	raw, err := s.store.Get(ctx, settingsSlot)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return settings, nil
		}
		return settings, err
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("corrupt settings record: %w", err)
	}
	return settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, settingsSlot, string(raw))
}
