package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

const callTimeout = 10 * time.Second

type pluginEvent struct {
	Plugin string `json:"plugin"`
	Reason string `json:"reason,omitempty"`
	Err    string `json:"err,omitempty"`
	TookMS int64  `json:"took_ms,omitempty"`
}

// Status is a read-only view of one registered plugin.
type Status struct {
	Name        string    `json:"name"`
	Running     bool      `json:"running"`
	Quarantined bool      `json:"quarantined,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Since       time.Time `json:"since,omitzero"`
}

type quarantineState struct {
	rawHash uint64
	err     string
	since   time.Time
	count   int
}

type Manager struct {
	mu sync.Mutex

	log  logx.Logger
	cfgm *config.ConfigManager
	deps Deps
	reg  map[string]Plugin
	run  map[string]bool
	// inited plugins are not re-initialized on enable/disable cycles.
	inited      map[string]bool
	lastRawHash map[string]uint64

	// baseCtx outlives the call-scoped contexts passed to StartAll and
	// OnConfigUpdate; it is canceled when the bound app context is done.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	bound      bool

	pctx    map[string]context.Context
	pcancel map[string]context.CancelFunc
	since   map[string]time.Time

	// quarantined plugins stay disabled until their config blob changes.
	quarantine map[string]quarantineState

	cmdm *CommandManager
}

func NewManager(log logx.Logger, cfgm *config.ConfigManager, deps Deps, cmdm *CommandManager) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		log:         log,
		cfgm:        cfgm,
		deps:        deps,
		reg:         map[string]Plugin{},
		run:         map[string]bool{},
		inited:      map[string]bool{},
		lastRawHash: map[string]uint64{},
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
		pctx:        map[string]context.Context{},
		pcancel:     map[string]context.CancelFunc{},
		since:       map[string]time.Time{},
		quarantine:  map[string]quarantineState{},
		cmdm:        cmdm,
	}
}

func (pm *Manager) emit(typ string, data pluginEvent) {
	if pm.deps.Bus == nil {
		return
	}
	pm.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (pm *Manager) isQuarantined(name string, rawHash uint64) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	q, ok := pm.quarantine[name]
	return ok && q.rawHash == rawHash
}

func (pm *Manager) setQuarantine(name string, rawHash uint64, err error, stage string) {
	pm.mu.Lock()
	q := pm.quarantine[name]
	if q.rawHash != rawHash {
		q = quarantineState{rawHash: rawHash, since: time.Now()}
	}
	q.err = err.Error()
	q.count++
	pm.quarantine[name] = q
	pm.mu.Unlock()

	pm.log.Warn("plugin quarantined", logx.String("plugin", name), logx.String("stage", stage), logx.Int("count", q.count), logx.Err(err))
	pm.emit("plugin.quarantined", pluginEvent{Plugin: name, Reason: stage, Err: err.Error()})
}

// BindContext ties plugin lifetimes to appCtx. Only the first call binds.
func (pm *Manager) BindContext(appCtx context.Context) {
	pm.mu.Lock()
	if pm.bound || appCtx == nil {
		pm.mu.Unlock()
		return
	}
	pm.bound = true
	baseCancel := pm.baseCancel
	pm.mu.Unlock()

	go func() {
		<-appCtx.Done()
		baseCancel()
	}()
}

// ValidateConfig runs every registered ConfigValidator against its blob in
// cfg. Disabled plugins are skipped.
func (pm *Manager) ValidateConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for n := range pm.reg {
		names = append(names, n)
	}
	sort.Strings(names)
	reg := make(map[string]Plugin, len(pm.reg))
	for n, p := range pm.reg {
		reg[n] = p
	}
	pm.mu.Unlock()

	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, ok := reg[n].(ConfigValidator)
		if !ok || !cfg.PluginEnabled(n) {
			continue
		}
		raw := cfg.Plugins[n]
		if err := pm.safeCall(n+".validate", func() error { return v.ValidateConfig(raw.Config) }); err != nil {
			return fmt.Errorf("plugins.%s.config: %w", n, err)
		}
	}
	return nil
}

func (pm *Manager) Register(p ...Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, pl := range p {
		pm.reg[pl.Name()] = pl
	}
	pm.refreshRegistryLocked(pm.cfgm.Get())
}

func (pm *Manager) StartAll(ctx context.Context) error {
	pm.BindContext(ctx)
	return pm.reconcile(pm.cfgm.Get())
}

// StopAll stops running plugins in reverse name order.
func (pm *Manager) StopAll(ctx context.Context, reason StopReason) {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	pm.mu.Unlock()
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		pm.stopOne(ctx, name, reason)
	}

	pm.mu.Lock()
	pm.refreshRegistryLocked(pm.cfgm.Get())
	pm.mu.Unlock()
}

func (pm *Manager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	pm.BindContext(ctx)
	_ = pm.reconcile(cfg)
}

func (pm *Manager) stopOne(stopCtx context.Context, name string, reason StopReason) {
	pm.mu.Lock()
	p := pm.reg[name]
	running := pm.run[name]
	cancel := pm.pcancel[name]
	pm.mu.Unlock()

	if !running || p == nil {
		return
	}

	start := time.Now()
	pm.log.Debug("stopping plugin", logx.String("plugin", name), logx.String("reason", string(reason)))

	if cancel != nil {
		cancel()
	}

	// a misbehaving Stop must not block shutdown past stopCtx
	done := make(chan struct{})
	go func() {
		_ = pm.safeCall("plugin.stop."+name, func() error { return p.Stop(stopCtx) })
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		pm.log.Warn("plugin stop timeout (continuing)", logx.String("plugin", name), logx.Err(stopCtx.Err()))
		pm.emit("plugin.stop_timeout", pluginEvent{Plugin: name, Reason: string(reason), Err: stopCtx.Err().Error()})
	}

	pm.mu.Lock()
	pm.run[name] = false
	pm.since[name] = time.Now()
	delete(pm.pctx, name)
	delete(pm.pcancel, name)
	delete(pm.lastRawHash, name)
	pm.mu.Unlock()

	took := time.Since(start)
	pm.emit("plugin.stopped", pluginEvent{Plugin: name, Reason: string(reason), TookMS: took.Milliseconds()})
	pm.log.Debug("plugin stopped", logx.String("plugin", name), logx.String("reason", string(reason)), logx.Duration("took", took))
}

func (pm *Manager) reconcile(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("plugin reconcile: no config loaded")
	}
	type op struct {
		name    string
		p       Plugin
		raw     PluginConfigRaw
		rawHash uint64
		enabled bool
		run     bool
	}
	pm.mu.Lock()
	ops := make([]op, 0, len(pm.reg))
	for name, p := range pm.reg {
		raw := cfg.Plugins[name]
		ops = append(ops, op{
			name:    name,
			p:       p,
			raw:     raw,
			rawHash: raw.Hash(),
			enabled: cfg.PluginEnabled(name),
			run:     pm.run[name],
		})
	}
	pm.mu.Unlock()
	sort.Slice(ops, func(i, j int) bool { return ops[i].name < ops[j].name })

	for _, o := range ops {
		switch {
		case o.enabled && !o.run:
			if pm.isQuarantined(o.name, o.rawHash) {
				pm.log.Debug("plugin enable skipped (quarantined)", logx.String("plugin", o.name))
				continue
			}
			if err := pm.enable(o.name, o.p, o.raw, o.rawHash); err != nil {
				pm.log.Error("plugin enable failed", logx.String("plugin", o.name), logx.Err(err))
			}

		case !o.enabled && o.run:
			stopCtx, cancel := context.WithTimeout(pm.baseCtx, callTimeout)
			pm.stopOne(stopCtx, o.name, StopPluginDisable)
			cancel()

		case o.enabled && o.run:
			cp, ok := o.p.(ConfigurablePlugin)
			if !ok {
				break
			}
			pm.mu.Lock()
			oldHash := pm.lastRawHash[o.name]
			pctx := pm.pctx[o.name]
			pm.mu.Unlock()
			if o.rawHash == oldHash {
				break
			}
			if pctx == nil {
				pctx = pm.baseCtx
			}
			cctx, ccancel := context.WithTimeout(pctx, callTimeout)
			err := pm.safeCall("plugin.config."+o.name, func() error { return cp.OnConfigChange(cctx, o.raw.Config) })
			ccancel()
			if err != nil {
				pm.setQuarantine(o.name, o.rawHash, fmt.Errorf("config apply: %w", err), "config")
				stopCtx, cancel := context.WithTimeout(pm.baseCtx, callTimeout)
				pm.stopOne(stopCtx, o.name, StopPluginQuarantine)
				cancel()
				break
			}
			pm.emit("plugin.config_applied", pluginEvent{Plugin: o.name})
			pm.mu.Lock()
			pm.lastRawHash[o.name] = o.rawHash
			pm.mu.Unlock()
		}
	}

	pm.mu.Lock()
	pm.refreshRegistryLocked(cfg)
	pm.mu.Unlock()
	return nil
}

// enable runs Init (once per plugin), applies config and starts it with a
// long-lived context derived from baseCtx.
func (pm *Manager) enable(name string, p Plugin, raw PluginConfigRaw, rawHash uint64) error {
	pctx, cancel := context.WithCancel(pm.baseCtx)

	pm.mu.Lock()
	needInit := !pm.inited[name]
	deps := pm.deps
	pm.mu.Unlock()
	if needInit {
		ictx, icancel := context.WithTimeout(pctx, callTimeout)
		err := pm.safeCall("plugin.init."+name, func() error { return p.Init(ictx, deps) })
		icancel()
		if err != nil {
			cancel()
			pm.emit("plugin.init_failed", pluginEvent{Plugin: name, Err: err.Error()})
			return fmt.Errorf("init: %w", err)
		}
		pm.mu.Lock()
		pm.inited[name] = true
		pm.mu.Unlock()
	}

	if cp, ok := p.(ConfigurablePlugin); ok {
		cctx, ccancel := context.WithTimeout(pctx, callTimeout)
		err := pm.safeCall("plugin.config."+name, func() error { return cp.OnConfigChange(cctx, raw.Config) })
		ccancel()
		if err != nil {
			cancel()
			pm.setQuarantine(name, rawHash, fmt.Errorf("config apply: %w", err), "config")
			return err
		}
	}

	if err := pm.startWithTimeout(name, p, pctx, cancel, callTimeout); err != nil {
		cancel()
		pm.emit("plugin.start_failed", pluginEvent{Plugin: name, Err: err.Error()})
		return fmt.Errorf("start: %w", err)
	}

	pm.mu.Lock()
	pm.run[name] = true
	pm.pctx[name] = pctx
	pm.pcancel[name] = cancel
	pm.since[name] = time.Now()
	pm.lastRawHash[name] = rawHash
	delete(pm.quarantine, name)
	pm.mu.Unlock()

	pm.log.Info("plugin started", logx.String("plugin", name))
	pm.emit("plugin.started", pluginEvent{Plugin: name})
	return nil
}

// startWithTimeout calls Start(pctx) but enforces a deadline. On timeout the
// plugin context is canceled.
func (pm *Manager) startWithTimeout(name string, p Plugin, pctx context.Context, cancel context.CancelFunc, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- pm.safeCall("plugin.start."+name, func() error { return p.Start(pctx) })
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return err
	case <-t.C:
		cancel()
		grace := time.NewTimer(2 * time.Second)
		defer grace.Stop()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("start timeout (%s): %w", timeout, err)
			}
			return fmt.Errorf("start timeout (%s)", timeout)
		case <-grace.C:
			return fmt.Errorf("start timeout (%s): start did not return after cancel", timeout)
		}
	}
}

func (pm *Manager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call", logx.String("call", label), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}

func (pm *Manager) refreshRegistryLocked(cfg *config.Config) {
	if pm.cmdm == nil {
		return
	}
	var (
		cmds []Command
		cbs  []CallbackRoute
	)
	for name, p := range pm.reg {
		if !pm.run[name] || !cfg.PluginEnabled(name) {
			continue
		}
		for _, c := range pm.safeCommands(name, p) {
			c.PluginName = name
			cmds = append(cmds, c)
		}
		if cbp, ok := p.(CallbackProvider); ok {
			for _, r := range pm.safeCallbacks(name, cbp) {
				r.Plugin = name
				cbs = append(cbs, r)
			}
		}
	}
	pm.cmdm.SetRegistry(cmds, cbs)
}

func (pm *Manager) safeCommands(name string, p Plugin) (out []Command) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin Commands()", logx.String("plugin", name), logx.Any("panic", r))
			out = nil
		}
	}()
	return p.Commands()
}

func (pm *Manager) safeCallbacks(name string, p CallbackProvider) (out []CallbackRoute) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin Callbacks()", logx.String("plugin", name), logx.Any("panic", r))
			out = nil
		}
	}()
	return p.Callbacks()
}

// Snapshot returns the state of every registered plugin, sorted by name.
func (pm *Manager) Snapshot() []Status {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]Status, 0, len(pm.reg))
	for name := range pm.reg {
		st := Status{Name: name, Running: pm.run[name], Since: pm.since[name]}
		if q, ok := pm.quarantine[name]; ok {
			st.Quarantined = true
			st.LastError = q.err
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
