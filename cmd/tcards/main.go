// tcards is a terminal client for a clockmail database with trigger cards:
// a row of clickable cards, one per participant of the current group
// conversation, that nudge, mute or run reply scripts for that participant.
//
// Usage:
//
//	tcards                         # Auto-discover .clockmail/clockmail.db
//	tcards --db <path>             # Use specific database path
//	tcards --scope dm:alice        # Start in a specific conversation
//	tcards --json                  # Dump the cards of a conversation and exit
//	tcards --config <file>         # Use a specific config file
//	tcards --verbose               # Debug logging to the log file
//	tcards --version               # Print version and exit
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/daviddao/clockmail/pkg/model"
	"github.com/daviddao/clockmail/pkg/store"
	"github.com/daviddao/clockmail_cards/internal/cards"
	"github.com/daviddao/clockmail_cards/internal/config"
	"github.com/daviddao/clockmail_cards/internal/conversation"
	"github.com/daviddao/clockmail_cards/internal/datasource"
	"github.com/daviddao/clockmail_cards/internal/dispatch"
	"github.com/daviddao/clockmail_cards/internal/host"
	"github.com/daviddao/clockmail_cards/internal/identity"
	"github.com/daviddao/clockmail_cards/internal/lifecycle"
	"github.com/daviddao/clockmail_cards/internal/logging"
	"github.com/daviddao/clockmail_cards/internal/replyset"
	"github.com/daviddao/clockmail_cards/internal/settings"
	"github.com/daviddao/clockmail_cards/internal/snapshot"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

type options struct {
	db      string
	config  string
	scope   string
	json    bool
	verbose bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tcards: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "tcards",
		Short: "Trigger cards for clockmail group conversations",
		Long: `tcards shows the messages of a clockmail database and, for group
conversations, a row of trigger cards: one card per participant.

Click a card to trigger the agent, shift+click to unmute it, alt+click to
mute it. Type /tc? in the input for the full help.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.SetVersionTemplate("tcards {{.Version}}\n")

	f := cmd.Flags()
	f.StringVar(&opts.db, "db", "", "path to clockmail.db (default: auto-discover)")
	f.StringVar(&opts.config, "config", "", "config file (default: .clockmail/tcards.yaml next to the database)")
	f.StringVar(&opts.scope, "scope", "", "conversation to open, e.g. group:reviewers or dm:alice")
	f.BoolVar(&opts.json, "json", false, "dump the cards of the conversation as JSON and exit (no TUI)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	return cmd
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	s, dbPath, err := datasource.Open(opts.db)
	if err != nil {
		return err
	}
	defer s.Close()

	root := datasource.Root(dbPath)
	cfgPath := opts.config
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.DefaultPath)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	cfg.Resolve(root)

	log, err := logging.New(cfg.Log.Path, cfg.Log.Level, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting", zap.String("version", Version), zap.String("db", dbPath))

	a, err := newApp(s, dbPath, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.json {
		return a.dumpJSON(ctx, opts.scope, stdout)
	}
	return a.runTUI(ctx, opts.scope)
}

// app holds the long-lived services shared by the UI and the card loop.
type app struct {
	store  *store.Store
	dbPath string
	cfg    *config.Config
	log    *zap.Logger

	relay    *relay
	surface  *cardSurface
	settings *settings.Debounced
	host     *host.Host
	replies  *replyset.Library
	ctrl     *lifecycle.Controller
}

func newApp(s *store.Store, dbPath string, cfg *config.Config, log *zap.Logger) (*app, error) {
	tag, err := language.Parse(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("config language %q: %w", cfg.Language, err)
	}
	backend, err := settings.Open(settings.Options{
		Backend:  cfg.Settings.Backend,
		Path:     cfg.Settings.Path,
		RedisURL: cfg.Settings.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	r := &relay{}
	h := host.New(s, cfg.Sender, log.Named("host"))
	h.OnChange = func() { r.send(dbChangedMsg{}) }

	lib, err := replyset.Load(cfg.ReplySets, h)
	if err != nil {
		backend.Close()
		return nil, err
	}

	a := &app{
		store:    s,
		dbPath:   dbPath,
		cfg:      cfg,
		log:      log,
		relay:    r,
		surface:  &cardSurface{relay: r},
		settings: settings.NewDebounced(backend, cfg.DebounceDelay(), log.Named("settings")),
		host:     h,
		replies:  lib,
	}
	d := &dispatch.Dispatcher{
		Actions:  lib,
		Commands: h,
		Notifier: toastNotifier{relay: r},
		Logger:   log.Named("dispatch"),
	}
	a.ctrl = lifecycle.New(lifecycle.Options{
		Store:      a.settings,
		Surface:    a.surface,
		Actions:    lib,
		Dispatcher: d,
		Interval:   cfg.Tick(),
		Logger:     log.Named("cards"),
		RowOptions: []cards.RowOption{cards.WithLanguage(tag)},
		OnChange:   func(cards.Patch) { r.send(cardsChangedMsg{}) },
	})
	return a, nil
}

// Close stops the cards and flushes pending settings.
func (a *app) Close() {
	a.ctrl.Stop()
	if err := a.settings.Close(); err != nil {
		a.log.Warn("closing settings store", zap.Error(err))
	}
}

// conversations lists the conversations of the current database state.
func (a *app) conversations(agents []model.Agent) []conversation.Context {
	return conversation.List(a.dbPath, a.cfg.Sender, a.store, a.cfg.Groups, agents)
}

func (a *app) runTUI(ctx context.Context, scope string) error {
	snap, err := snapshot.Build(a.store)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	w, err := datasource.WatchDB(a.dbPath, datasource.WithLogger(a.log))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	// The reply set file is optional; without its directory there is
	// nothing to watch.
	var replyChanges <-chan struct{}
	if rw, err := datasource.NewWatcher(a.replies.Path(), datasource.WithLogger(a.log)); err != nil {
		a.log.Debug("not watching reply sets", zap.String("path", a.replies.Path()), zap.Error(err))
	} else {
		defer rw.Close()
		replyChanges = rw.Changes()
	}

	m := newModel(a.services(), snap, scope)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion())
	a.relay.attach(p)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Feed DB and reply set changes into the TUI.
	go forward(ctx, w.Changes(), a.relay, dbChangedMsg{})
	go forward(ctx, replyChanges, a.relay, replySetsChangedMsg{})

	// Polling fallback: refresh at the configured interval even if fsnotify misses events.
	go func() {
		ticker := time.NewTicker(a.cfg.RefreshEvery())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.relay.send(dbChangedMsg{})
			}
		}
	}()

	_, err = p.Run()
	return err
}

func forward(ctx context.Context, ch <-chan struct{}, r *relay, msg tea.Msg) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			r.send(msg)
		}
	}
}

func (a *app) services() services {
	return services{
		store:    a.store,
		dbPath:   a.dbPath,
		self:     a.cfg.Sender,
		groups:   a.cfg.Groups,
		ctrl:     a.ctrl,
		surface:  a.surface,
		commands: a.host,
		muted:    a.host.Muted,
		replies:  a.replies,
	}
}

// jsonOutput is the structure for --json mode.
type jsonOutput struct {
	Scope      string     `json:"scope"`
	Title      string     `json:"title"`
	Group      bool       `json:"group"`
	Enabled    bool       `json:"enabled"`
	Actions    string     `json:"actions,omitempty"`
	Members    string     `json:"members,omitempty"`
	MemberList []string   `json:"member_list,omitempty"`
	Cards      []jsonCard `json:"cards"`
}

type jsonCard struct {
	Identity string `json:"identity"`
	Label    string `json:"label"`
	Muted    bool   `json:"muted,omitempty"`
	Tooltip  string `json:"tooltip"`
}

// dumpJSON prints the cards scope would show right now.
func (a *app) dumpJSON(ctx context.Context, scope string, w io.Writer) error {
	snap, err := snapshot.Build(a.store)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	convs := a.conversations(snap.Agents)
	conv := convs[pickConversation(convs, scope)]
	if scope != "" && conv.Scope != scope {
		return fmt.Errorf("unknown conversation %q", scope)
	}

	out, err := buildJSONOutput(ctx, a.ctrl, conv, a.cfg.Language, a.host.IsMuted)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("json: %w", err)
	}
	return nil
}

func buildJSONOutput(ctx context.Context, ctrl *lifecycle.Controller, conv conversation.Context, lang string, muted func(string) bool) (jsonOutput, error) {
	if err := ctrl.ConversationChanged(ctx, conv); err != nil {
		return jsonOutput{}, err
	}
	defer ctrl.Stop()

	out := jsonOutput{Scope: conv.Scope, Title: conv.Title, Group: conv.Group, Cards: []jsonCard{}}
	s, ok := ctrl.Settings()
	if !ok || !s.Enabled {
		return out, nil
	}
	out.Enabled = true
	out.Actions = s.ActionSet()
	out.Members = s.MemberSet()
	out.MemberList = s.MemberList

	names, err := ctrl.Names(ctx)
	if err != nil {
		return jsonOutput{}, fmt.Errorf("cards: %w", err)
	}
	row := cards.NewRow(cards.WithLanguage(language.Make(lang)))
	row.Sync(names)
	for _, id := range row.Identities() {
		c := cards.Card{Identity: id, ID: identity.Parse(id)}
		out.Cards = append(out.Cards, jsonCard{
			Identity: id,
			Label:    c.Label(),
			Muted:    muted(c.ID.Base),
			Tooltip:  ctrl.Title(ctx, id),
		})
	}
	return out, nil
}
