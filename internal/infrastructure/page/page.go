// Package page hosts the running client page: the live document plugin
// scripts are injected into and the single execution context they run in.
package page

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
)

// Options configures a Page
type Options struct {
	Fetcher        ScriptFetcher
	NewRuntime     func() ScriptRuntime
	AllowedOrigins []string
	Logger         ports.LoggingGateway
}

// Page implements ports.ScriptLoader over a host document. Attached scripts
// are fetched and evaluated asynchronously once Start has been called.
type Page struct {
	mu             sync.Mutex
	doc            *Document
	runtime        ScriptRuntime
	pending        []Script
	wake           chan struct{}
	fetcher        ScriptFetcher
	newRuntime     func() ScriptRuntime
	allowedOrigins []string
	logger         ports.LoggingGateway

	parent  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	onLoad  func()
	reloads int
}

// New creates a page with a pristine document and execution context
func New(opts Options) (*Page, error) {
	doc, err := NewDocument()
	if err != nil {
		return nil, err
	}
	if opts.NewRuntime == nil {
		return nil, fmt.Errorf("page requires a runtime factory")
	}
	return &Page{
		doc:            doc,
		runtime:        opts.NewRuntime(),
		wake:           make(chan struct{}, 1),
		fetcher:        opts.Fetcher,
		newRuntime:     opts.NewRuntime,
		allowedOrigins: opts.AllowedOrigins,
		logger:         opts.Logger,
	}, nil
}

// OnReload registers the hook run after every reload. The application
// uses it to re-run its startup sequence.
func (p *Page) OnReload(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLoad = fn
}

// Attach injects the script for rec
func (p *Page) Attach(rec plugin.Record) error {
	elementID := plugin.ScriptElementID(rec.ID)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doc.GetElementByID(elementID) != nil {
		return nil
	}
	if plugin.IsArchive(rec.FileURL) {
		p.logger.Log(ports.LogLevelDebug, "Skipping archive plugin", map[string]interface{}{
			"plugin_id": rec.ID,
			"file_url":  rec.FileURL,
		})
		return nil
	}
	if err := p.checkOrigin(rec.FileURL); err != nil {
		return &plugin.InjectionError{PluginID: rec.ID, Err: err}
	}

	el, err := NewScriptElement(elementID, rec.FileURL)
	if err != nil {
		return &plugin.InjectionError{PluginID: rec.ID, Err: err}
	}
	p.doc.AppendToBody(el)

	p.pending = append(p.pending, Script{
		PluginID: rec.ID,
		Name:     rec.FileURL,
		Src:      rec.FileURL,
	})
	select {
	case p.wake <- struct{}{}:
	default:
	}

	p.logger.Log(ports.LogLevelInfo, "Plugin loaded", map[string]interface{}{
		"plugin_id": rec.ID,
		"name":      rec.DisplayName(),
	})
	return nil
}

// Detach removes the script for id and reloads the page. Removing the tag
// cannot undo what the script already did, so only a reload guarantees the
// plugin is gone.
func (p *Page) Detach(id plugin.ID) {
	p.mu.Lock()
	el := p.doc.GetElementByID(plugin.ScriptElementID(id))
	if el == nil {
		p.mu.Unlock()
		return
	}
	p.doc.Remove(el)
	p.mu.Unlock()

	p.logger.Log(ports.LogLevelInfo, "Plugin stopped, reloading page", map[string]interface{}{
		"plugin_id": id,
	})
	p.Reload()
}

// Reload discards the document, the execution context and queued scripts,
// then runs the reload hook
func (p *Page) Reload() {
	p.mu.Lock()
	running := p.cancel != nil
	parent := p.parent
	p.mu.Unlock()

	if running {
		p.stop()
	}

	doc, err := NewDocument()
	if err != nil {
		p.logger.LogError(err, "Failed to rebuild host document", nil)
		return
	}

	p.mu.Lock()
	p.doc = doc
	p.runtime = p.newRuntime()
	p.pending = nil
	p.reloads++
	hook := p.onLoad
	p.mu.Unlock()

	if running {
		p.Start(parent)
	}
	if hook != nil {
		hook()
	}
}

// HasScript reports whether the script for id is in the document
func (p *Page) HasScript(id plugin.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.GetElementByID(plugin.ScriptElementID(id)) != nil
}

// Scripts lists the script elements currently in the document
func (p *Page) Scripts() []ScriptElement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Scripts()
}

// Reloads returns how many times the page has been reloaded
func (p *Page) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

// Render writes the current document as HTML
func (p *Page) Render(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Render(w)
}

// Start runs the execution loop until ctx is done or Close is called
func (p *Page) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.parent = ctx
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	if len(p.pending) > 0 {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

// Close stops the execution loop
func (p *Page) Close() error {
	p.stop()
	return nil
}

func (p *Page) stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Page) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		p.mu.Lock()
		batch := p.pending
		p.pending = nil
		rt := p.runtime
		p.mu.Unlock()

		for _, script := range batch {
			if ctx.Err() != nil {
				return
			}
			p.execute(ctx, rt, script)
		}
	}
}

func (p *Page) execute(ctx context.Context, rt ScriptRuntime, script Script) {
	source, err := p.fetcher.Fetch(ctx, script.Src)
	if err == nil {
		script.Source = source
		err = rt.Run(ctx, script)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.LogError(&plugin.InjectionError{PluginID: script.PluginID, Err: err}, "Plugin failed to load", map[string]interface{}{
			"file_url": script.Src,
		})
		return
	}
	p.logger.Log(ports.LogLevelDebug, "Plugin script executed", map[string]interface{}{
		"plugin_id": script.PluginID,
	})
}

// checkOrigin enforces the optional origin allow-list
func (p *Page) checkOrigin(src string) error {
	if len(p.allowedOrigins) == 0 {
		return nil
	}
	u, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("invalid script url: %w", err)
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	for _, allowed := range p.allowedOrigins {
		if strings.ToLower(strings.TrimRight(allowed, "/")) == origin {
			return nil
		}
	}
	return fmt.Errorf("script origin %s is not allowed", origin)
}
