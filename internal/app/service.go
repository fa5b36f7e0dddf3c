package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"agencyos/internal/clock"
	"agencyos/internal/config"
	"agencyos/internal/content"
	"agencyos/internal/export"
	"agencyos/internal/glossary"
	"agencyos/internal/localstore"
	"agencyos/internal/passcode"
	"agencyos/internal/search"
	"agencyos/internal/session"
	"agencyos/internal/shared"
	"agencyos/internal/state"
	"agencyos/internal/syncer"
)

// Deps are the externally built backends. Zero values fall back to
// in-memory or disabled implementations.
type Deps struct {
	Sessions session.Storage
	Remote   shared.Store
	Meili    *search.Meili
	Clock    clock.Clock
}

type Service struct {
	cfg       config.Config
	passcodes *passcode.Table
	access    *session.Manager
	maps      *state.Maps
	remote    shared.Store
	engine    *syncer.Engine
	tree      *content.Tree
	glossary  *glossary.Glossary
	search    *search.Service
	exports   *export.Service
	stream    *hub
}

// NodeSummary is the copyable text of one node.
type NodeSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Prompt string `json:"prompt"`
}

type ReadyReport struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
	Sync   syncer.Stats   `json:"sync"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func New(ctx context.Context, cfg config.Config, deps Deps) (*Service, error) {
	entries := passcode.DefaultEntries()
	if strings.TrimSpace(cfg.Passcodes) != "" {
		parsed, err := passcode.ParseEntries(cfg.Passcodes)
		if err != nil {
			return nil, fmt.Errorf("passcodes: %w", err)
		}
		entries = parsed
	}
	table, err := passcode.NewTable(entries)
	if err != nil {
		return nil, fmt.Errorf("passcodes: %w", err)
	}

	tree, err := content.Load(cfg.ContentPath)
	if err != nil {
		return nil, fmt.Errorf("content: %w", err)
	}
	gloss, err := glossary.Load(cfg.GlossaryPath)
	if err != nil {
		return nil, fmt.Errorf("glossary: %w", err)
	}

	var persist state.Persister
	if strings.TrimSpace(cfg.DataDir) != "" {
		persist = localstore.NewFileStore(cfg.DataDir)
	}
	maps := state.New(persist)

	remote := deps.Remote
	if remote == nil {
		remote = shared.Disabled{Reason: "not configured"}
	}
	opts := []syncer.Option{}
	if cfg.SyncDelay > 0 {
		opts = append(opts, syncer.WithDelay(cfg.SyncDelay))
	}
	if deps.Clock != nil {
		opts = append(opts, syncer.WithClock(deps.Clock))
	}
	engine := syncer.New(remote, maps, opts...)

	access := session.NewManager(deps.Sessions)
	engine.Attach(access)

	searchService := search.NewService(deps.Meili, tree)
	searchService.UpdateComments(maps.Snapshot().CommentsMap)
	if deps.Meili != nil {
		go searchService.ReindexAll()
	}

	s := &Service{
		cfg:       cfg,
		passcodes: table,
		access:    access,
		maps:      maps,
		remote:    remote,
		engine:    engine,
		tree:      tree,
		glossary:  gloss,
		search:    searchService,
		exports:   export.NewService(tree, gloss, maps),
		stream:    newHub(),
	}

	maps.OnChange(func(origin state.Origin, snap state.Snapshot) {
		searchService.UpdateComments(snap.CommentsMap)
		s.stream.publish(s.stateEvent(origin, snap))
	})
	access.OnChange(func(a session.Access) {
		if !a.Granted {
			s.stream.closeAll()
		}
	})

	restored := access.Restore(ctx)
	if restored.Granted {
		log.Printf("app: restored access session for %s", restored.Label)
	}
	return s, nil
}

// Close locks the engine down and releases backends.
func (s *Service) Close() {
	s.engine.Stop()
	s.stream.closeAll()
	if closer, ok := s.remote.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Printf("app: close remote store: %v", err)
		}
	}
}

func (s *Service) Access() session.Access {
	return s.access.Current()
}

func (s *Service) Unlocked() bool {
	return s.access.Current().Granted
}

func (s *Service) Unlock(ctx context.Context, code string) (session.Access, error) {
	access, err := s.access.Unlock(ctx, s.passcodes, code)
	if err != nil {
		if errors.Is(err, passcode.ErrEmpty) {
			return access, errValidation("code is required")
		}
		return access, errInvalidPasscode()
	}
	log.Printf("app: access granted (%s)", access.Label)
	return access, nil
}

func (s *Service) Lock(ctx context.Context) session.Access {
	s.access.Revoke(ctx)
	return s.access.Current()
}

func (s *Service) State() state.Snapshot {
	return s.maps.Snapshot()
}

func (s *Service) SetChecked(id string, checked bool) (state.Snapshot, error) {
	if err := s.requireNode(id); err != nil {
		return state.Snapshot{}, err
	}
	return s.maps.SetChecked(id, checked), nil
}

func (s *Service) ToggleChecked(id string) (state.Snapshot, error) {
	if err := s.requireNode(id); err != nil {
		return state.Snapshot{}, err
	}
	return s.maps.ToggleChecked(id), nil
}

func (s *Service) SetComment(id, comment string) (state.Snapshot, error) {
	if err := s.requireNode(id); err != nil {
		return state.Snapshot{}, err
	}
	return s.maps.SetComment(id, comment), nil
}

func (s *Service) Nodes(query string) []content.Node {
	nodes := s.tree.Filter(query)
	if nodes == nil {
		return []content.Node{}
	}
	return nodes
}

func (s *Service) Node(id string) (content.Node, error) {
	node, err := s.tree.Find(id)
	if err != nil {
		return content.Node{}, mapContentError(id, err)
	}
	return node, nil
}

func (s *Service) Summary(id string) (NodeSummary, error) {
	node, err := s.Node(id)
	if err != nil {
		return NodeSummary{}, err
	}
	return NodeSummary{
		ID:     node.ID,
		Title:  node.Title,
		Text:   content.SectionText(node),
		Prompt: content.TaskPrompt(node),
	}, nil
}

func (s *Service) Progress() content.Progress {
	return s.tree.Progress(s.maps.Snapshot().CheckedMap)
}

func (s *Service) Glossary() []glossary.Term {
	return s.glossary.Terms()
}

func (s *Service) Highlight(text string) map[string]any {
	segments := s.glossary.Segments(text)
	if segments == nil {
		segments = []glossary.Segment{}
	}
	return map[string]any{
		"segments": segments,
		"html":     s.glossary.HTML(text),
	}
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) Export(ctx context.Context, format export.Format) (*export.Result, error) {
	result, err := s.exports.Export(ctx, format)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat):
			return nil, errUnsupportedFormat(err.Error())
		case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
			return nil, errExportUnavailable(err.Error())
		}
		return nil, err
	}
	return result, nil
}

func (s *Service) SyncStats() syncer.Stats {
	return s.engine.Stats()
}

// Ready reports backend health. Only the session storage is required;
// the remote store and search degrade to local behavior.
func (s *Service) Ready(ctx context.Context) (ReadyReport, error) {
	report := ReadyReport{
		Status: "ready",
		Checks: map[string]any{},
		Sync:   s.engine.Stats(),
	}

	var failed error
	if err := s.access.Ping(ctx); err != nil {
		report.Status = "not_ready"
		report.Checks["session"] = map[string]any{"status": "error", "error": err.Error()}
		failed = err
	} else {
		report.Checks["session"] = map[string]any{"status": "ok"}
	}

	switch remote := s.remote.(type) {
	case shared.Disabled:
		report.Checks["remote"] = map[string]any{"status": "disabled", "reason": remote.Reason}
	case pinger:
		if err := remote.Ping(ctx); err != nil {
			if failed == nil {
				report.Status = "degraded"
			}
			report.Checks["remote"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			report.Checks["remote"] = map[string]any{"status": "ok"}
		}
	default:
		report.Checks["remote"] = map[string]any{"status": "ok"}
	}

	report.Checks["search"] = map[string]any{"status": "ok", "engine": s.search.Engine()}
	return report, failed
}

func (s *Service) requireNode(id string) error {
	if _, err := s.tree.Find(id); err != nil {
		return mapContentError(id, err)
	}
	return nil
}

func (s *Service) stateEvent(origin state.Origin, snap state.Snapshot) streamEvent {
	return streamEvent{
		Type:     "state",
		Origin:   origin.String(),
		State:    snap,
		Progress: s.tree.Progress(snap.CheckedMap),
		At:       time.Now().UnixMilli(),
	}
}

func mapContentError(id string, err error) error {
	if errors.Is(err, content.ErrNodeNotFound) {
		return errNodeNotFound(id)
	}
	return err
}
