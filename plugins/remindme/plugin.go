// Package remindme implements the /remindme command.
package remindme

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/delivery"
	"remindbot/internal/plugin"
	logx "remindbot/pkg/logx"
)

const (
	name = "remindme"

	// maxCancelButtons caps the cancel picker keyboard.
	maxCancelButtons = 25
)

// Options is the plugin config blob.
type Options struct {
	// MaxPerUser caps pending reminders per user. 0 means no cap.
	MaxPerUser int `json:"max_per_user,omitempty"`
}

type Plugin struct {
	plugin.Base

	mu   sync.RWMutex
	opts Options

	// now is replaced in tests.
	now func() time.Time
}

func New() *Plugin { return &Plugin{now: time.Now} }

func (p *Plugin) Name() string { return name }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func decodeOptions(raw json.RawMessage) (Options, error) {
	o, err := plugin.DecodeConfig[Options](raw)
	if err != nil {
		return Options{}, err
	}
	if o.MaxPerUser < 0 {
		return Options{}, errors.New("max_per_user must be >= 0")
	}
	return o, nil
}

func (p *Plugin) ValidateConfig(raw json.RawMessage) error {
	_, err := decodeOptions(raw)
	return err
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	o, err := decodeOptions(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.opts = o
	p.mu.Unlock()
	p.Log.Debug("config applied", logx.Int("max_per_user", o.MaxPerUser))
	return nil
}

func (p *Plugin) options() Options {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts
}

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "remindme in",
			Aliases:     []string{"remind"},
			Description: "remind you after a duration",
			Usage:       "/remindme in <10m|2h|1d|10 minutes> [message]",
			Examples:    []string{"/remindme in 10m stretch", "/remindme in 1h 30m check the oven"},
			Handle:      p.cmdIn,
		},
		{
			Route:       "remindme on",
			Description: "remind you on a date and time",
			Usage:       "/remindme on <YYYY-MM-DD> <01:30 PM> [message]",
			Examples:    []string{"/remindme on 2026-12-24 09:00 AM wrap presents"},
			Handle:      p.cmdOn,
		},
		{
			Route:       "remindme at",
			Description: "remind you at a time today",
			Usage:       "/remindme at <07:00 PM> [message]",
			Examples:    []string{"/remindme at 07:00 PM call mum"},
			Handle:      p.cmdAt,
		},
		{
			Route:       "remindme view",
			Aliases:     []string{"reminders"},
			Description: "list your active reminders",
			Usage:       "/remindme view",
			Handle:      p.cmdView,
		},
		{
			Route:       "remindme cancel",
			Description: "cancel a reminder",
			Usage:       "/remindme cancel [id|#n]",
			Examples:    []string{"/remindme cancel #1"},
			Handle:      p.cmdCancel,
		},
	}
}

func (p *Plugin) Callbacks() []plugin.CallbackRoute {
	return []plugin.CallbackRoute{
		{
			Plugin:      name,
			Action:      "cancel",
			Description: "cancel a reminder from the picker",
			// ownership is checked by the scheduler
			Access: plugin.CallbackAccessEveryone,
			Handle: p.cbCancel,
		},
	}
}

// remindersConfig falls back to defaults when no config is loaded.
func (p *Plugin) remindersConfig(req *plugin.Request) config.RemindersConfig {
	if req != nil && req.Config != nil {
		return req.Config.Reminders
	}
	var c config.Config
	c.SetDefaults()
	return c.Reminders
}

// location returns the user's timezone, falling back to reminders.timezone.
func (p *Plugin) location(ctx context.Context, req *plugin.Request) *time.Location {
	var def *time.Location
	if req.Config != nil {
		def = req.Config.Location()
	} else {
		def = time.UTC
	}
	if p.Deps.Store == nil {
		return def
	}
	tz, ok, err := p.Deps.Store.GetTimezone(ctx, req.FromID)
	if err != nil {
		req.Logger.Warn("timezone lookup failed", logx.Err(err))
		return def
	}
	if !ok {
		return def
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		req.Logger.Warn("stored timezone invalid", logx.String("tz", tz), logx.Err(err))
		return def
	}
	return loc
}

func (p *Plugin) formatter(loc *time.Location, rc config.RemindersConfig) delivery.Formatter {
	return delivery.Formatter{Location: loc, DefaultMessage: rc.DefaultMessage, Now: p.now}
}
