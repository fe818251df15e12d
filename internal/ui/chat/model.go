// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/devkabir/chat-ui/internal/config"
	"github.com/devkabir/chat-ui/internal/llm"
	"github.com/devkabir/chat-ui/internal/model"
	"github.com/devkabir/chat-ui/internal/render"
	"github.com/devkabir/chat-ui/internal/search"
	"github.com/devkabir/chat-ui/internal/ui/styles"
)

// =============================================================================
// CHAT STATE
// =============================================================================

// State is the current state of the chat screen.
type State int

const (
	StateReady     State = iota // waiting for input
	StateStreaming              // a reply is in flight
)

// Options configures a chat Model. Backend and Config are required.
type Options struct {
	Backend  Backend
	Config   *config.Config
	Store    Saver           // nil disables history
	Searcher search.Searcher // nil disables /search
	Theme    *styles.Theme
	Logger   *zap.SugaredLogger

	// Conversation resumes an earlier session when set.
	Conversation *model.Conversation

	// ConfigUpdates delivers reloaded configuration (see config.Watch).
	ConfigUpdates <-chan *config.Config

	// Context bounds background work; cancelled when the program exits.
	Context context.Context
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx     context.Context
	backend Backend
	store   Saver
	log     *zap.SugaredLogger

	cfg      *config.Config
	theme    *styles.Theme
	renderer *render.Renderer
	keys     KeyMap

	searcher   search.Searcher
	autoSearch bool
	// groundNext is context from /search to attach to the next message.
	groundNext string

	configUpdates <-chan *config.Config

	conv   *model.Conversation
	models []llm.ModelInfo

	state    State
	stream   *streamSession
	streamID int

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	width, height int
	ready         bool
	quitting      bool

	online    bool
	pinged    bool
	status    string
	lastStats *model.Statistics
}

// New creates the chat screen.
func New(opts Options) *Model {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	theme := opts.Theme
	if theme == nil {
		theme = styles.ForMode(cfg.UI.Theme)
	}

	conv := opts.Conversation
	if conv == nil {
		conv = model.NewConversationWithModel(cfg.Chat.DefaultModel)
		conv.Temperature = cfg.Chat.Temperature
		conv.SystemPrompt = cfg.Chat.SystemPrompt
	}

	input := textarea.New()
	input.Placeholder = "Send a message (/help for commands)"
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)
	input.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := &Model{
		ctx:           ctx,
		backend:       opts.Backend,
		store:         opts.Store,
		log:           log,
		cfg:           cfg,
		theme:         theme,
		renderer:      render.New(cfg.UI.Theme, cfg.UI.WordWrap, cfg.UI.RenderMarkdown),
		keys:          DefaultKeyMap(),
		searcher:      opts.Searcher,
		autoSearch:    cfg.Search.Enabled && opts.Searcher != nil,
		configUpdates: opts.ConfigUpdates,
		conv:          conv,
		viewport:      viewport.New(80, 20),
		input:         input,
		spinner:       sp,
	}
	m.refresh()
	return m
}

// Init starts the reachability check, the model list fetch and the
// config watcher.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.ping(), m.fetchModels(false), m.waitForConfig())
}

// Conversation returns the active conversation.
func (m *Model) Conversation() *model.Conversation {
	return m.conv
}

// State returns the current state.
func (m *Model) State() State {
	return m.state
}

func (m *Model) waitForConfig() tea.Cmd {
	if m.configUpdates == nil {
		return nil
	}
	ch := m.configUpdates
	return func() tea.Msg {
		cfg, ok := <-ch
		if !ok {
			return nil
		}
		return configMsg{cfg: cfg}
	}
}

// applyConfig takes display and chat settings from a reloaded config.
// Server settings only apply on restart.
func (m *Model) applyConfig(cfg *config.Config) {
	m.cfg = cfg
	m.theme = styles.ForMode(cfg.UI.Theme)
	m.spinner.Style = m.theme.Spinner
	m.renderer = render.New(cfg.UI.Theme, m.wrapWidth(), cfg.UI.RenderMarkdown)
	m.autoSearch = cfg.Search.Enabled && m.searcher != nil
	if m.conv.IsEmpty() {
		m.conv.Model = cfg.Chat.DefaultModel
		m.conv.Temperature = cfg.Chat.Temperature
		m.conv.SystemPrompt = cfg.Chat.SystemPrompt
	}
	m.status = "Configuration reloaded."
	m.log.Infow("configuration reloaded", "model", cfg.Chat.DefaultModel)
	m.refresh()
}

// newConversation replaces the conversation, keeping model and settings.
func (m *Model) newConversation() {
	next := model.NewConversationWithModel(m.conv.Model)
	next.Temperature = m.conv.Temperature
	next.SystemPrompt = m.conv.SystemPrompt
	m.conv = next
	m.groundNext = ""
	m.lastStats = nil
}

// note adds a local message to the transcript.
func (m *Model) note(text string) {
	m.conv.AddNote(text)
	m.refresh()
}
