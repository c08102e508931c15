// Package timezone implements /timezone, the per-user timezone preference
// used when reading wall-clock times in /remindme.
package timezone

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/plugin"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const footer = "Timezone"

type Plugin struct {
	plugin.Base

	now func() time.Time
}

func New() *Plugin { return &Plugin{now: time.Now} }

func (p *Plugin) Name() string { return "timezone" }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, p.Name())
	if deps.Store == nil {
		return errors.New("timezone: storage is required")
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{Route: "timezone set", Aliases: []string{"tz"}, Description: "set your timezone", Usage: "/timezone set <Area/City>", Examples: []string{"/timezone set Europe/Berlin"}, Handle: p.cmdSet},
		{Route: "timezone show", Description: "show your timezone", Usage: "/timezone show", Handle: p.cmdShow},
		{Route: "timezone clear", Description: "use the default timezone", Usage: "/timezone clear", Handle: p.cmdClear},
	}
}

func reply(ctx context.Context, req *plugin.Request, emoji, title string, lines ...tgui.H) error {
	c := tgui.NewCard(emoji, title)
	for _, l := range lines {
		c.HTML(l)
	}
	return req.Reply(ctx, c.Footer(footer).Build())
}

func (p *Plugin) defaultZone(req *plugin.Request) string {
	if req.Config != nil && req.Config.Reminders.Timezone != "" {
		return req.Config.Reminders.Timezone
	}
	return "UTC"
}

func (p *Plugin) localTime(loc *time.Location) tgui.H {
	return tgui.B("Local time:") + " " + tgui.Esc(p.now().In(loc).Format("Mon, 02 Jan 2006 15:04 MST"))
}

func (p *Plugin) cmdSet(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "❌", "Invalid Timezone", tgui.Raw("Use an IANA name such as ")+tgui.Code("Europe/Berlin")+tgui.Raw("."))
	}
	name := strings.TrimSpace(req.Args[0])
	loc, err := time.LoadLocation(name)
	// "Local" depends on the host, not the user
	if err != nil || name == "" || strings.EqualFold(name, "local") {
		return reply(ctx, req, "❌", "Invalid Timezone", tgui.Esc(name)+tgui.Raw(" is not a known timezone. Use an IANA name such as ")+tgui.Code("Europe/Berlin")+tgui.Raw("."))
	}
	if err := p.Deps.Store.PutTimezone(ctx, req.FromID, loc.String()); err != nil {
		req.Logger.Error("save timezone failed", logx.Err(err))
		return reply(ctx, req, "❌", "Failed", tgui.Esc("Could not save your timezone."))
	}
	req.Logger.Info("timezone set", logx.String("tz", loc.String()))
	p.PublishEvent(eventbus.TimezoneSet, eventbus.TimezoneEvent{UserID: req.FromID, Zone: loc.String()})
	return reply(ctx, req, "🕒", "Timezone Saved", tgui.B("Timezone:")+" "+tgui.Code(loc.String()), p.localTime(loc))
}

func (p *Plugin) cmdShow(ctx context.Context, req *plugin.Request) error {
	tz, ok, err := p.Deps.Store.GetTimezone(ctx, req.FromID)
	if err != nil {
		return err
	}
	if !ok {
		def := p.defaultZone(req)
		loc, err := time.LoadLocation(def)
		if err != nil {
			loc = time.UTC
		}
		return reply(ctx, req, "🕒", "No Timezone Set",
			tgui.Raw("Using the default ")+tgui.Code(def)+tgui.Raw("."),
			p.localTime(loc))
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return reply(ctx, req, "⚠️", "Timezone Invalid", tgui.Code(tz)+tgui.Raw(" is no longer recognised. Set it again with /timezone set."))
	}
	return reply(ctx, req, "🕒", "Your Timezone", tgui.B("Timezone:")+" "+tgui.Code(tz), p.localTime(loc))
}

func (p *Plugin) cmdClear(ctx context.Context, req *plugin.Request) error {
	existed, err := p.Deps.Store.DeleteTimezone(ctx, req.FromID)
	if err != nil {
		return err
	}
	if !existed {
		return reply(ctx, req, "🕒", "No Timezone Set", tgui.Raw("Using the default ")+tgui.Code(p.defaultZone(req))+tgui.Raw("."))
	}
	p.PublishEvent(eventbus.TimezoneCleared, eventbus.TimezoneEvent{UserID: req.FromID})
	return reply(ctx, req, "✅", "Timezone Cleared", tgui.Raw("Using the default ")+tgui.Code(p.defaultZone(req))+tgui.Raw("."))
}
