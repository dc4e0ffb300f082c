package page

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"

	"mfl.dev/cli/internal/application/ports"
	"mfl.dev/cli/internal/core/plugin"
)

// Script is a unit of work for the execution context
type Script struct {
	PluginID plugin.ID
	Name     string
	Src      string
	Source   string
}

// ScriptRuntime evaluates plugin scripts. Implementations are not safe for
// concurrent use; the page runs them on a single goroutine.
type ScriptRuntime interface {
	Run(ctx context.Context, script Script) error
}

// ScriptFetcher downloads script sources
type ScriptFetcher interface {
	Fetch(ctx context.Context, src string) (string, error)
}

// GojaRuntime runs plugin scripts in one shared JavaScript context, the way
// every script on a page shares one global scope
type GojaRuntime struct {
	vm       *goja.Runtime
	host     *goja.Object
	logger   ports.LoggingGateway
	pluginID plugin.ID
}

// NewGojaRuntime creates a fresh context exposing console and mfl globals.
// The mfl object is read-only to scripts.
func NewGojaRuntime(logger ports.LoggingGateway, hostVersion string) *GojaRuntime {
	vm := goja.New()
	r := &GojaRuntime{vm: vm, logger: logger}

	console := vm.NewObject()
	_ = console.Set("log", r.consoleFunc(ports.LogLevelInfo))
	_ = console.Set("info", r.consoleFunc(ports.LogLevelInfo))
	_ = console.Set("debug", r.consoleFunc(ports.LogLevelDebug))
	_ = console.Set("warn", r.consoleFunc(ports.LogLevelWarn))
	_ = console.Set("error", r.consoleFunc(ports.LogLevelError))
	_ = vm.Set("console", console)

	r.host = vm.NewObject()
	_ = r.host.DefineDataProperty("version", vm.ToValue(hostVersion), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = r.host.DefineAccessorProperty("pluginId", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(int64(r.pluginID))
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	_ = vm.GlobalObject().DefineDataProperty("mfl", r.host, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)

	return r
}

func (r *GojaRuntime) consoleFunc(level ports.LogLevel) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		r.logger.Log(level, strings.Join(parts, " "), map[string]interface{}{
			"plugin_id": int64(r.pluginID),
		})
		return goja.Undefined()
	}
}

// Run evaluates script. Cancelling ctx interrupts a running script.
func (r *GojaRuntime) Run(ctx context.Context, script Script) error {
	r.pluginID = script.PluginID

	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(ctx.Err())
	})
	defer func() {
		stop()
		r.vm.ClearInterrupt()
	}()

	if _, err := r.vm.RunScript(script.Name, script.Source); err != nil {
		return fmt.Errorf("evaluate %s: %w", script.Name, err)
	}
	return nil
}

// Get returns a global value, or nil when it is undefined
func (r *GojaRuntime) Get(name string) goja.Value {
	return r.vm.Get(name)
}

// HTTPFetcher downloads scripts over HTTP
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher with the given timeout
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: 5 << 20,
	}
}

// Fetch returns the body of src
func (f *HTTPFetcher) Fetch(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create script request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch script: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch script: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("script exceeds %d bytes", f.maxBytes)
	}
	return string(body), nil
}
