package plugin

import (
	"remindbot/internal/config"
	"remindbot/internal/transport/telegram/router"
)

// Router API re-exported so plugins import a single package.

type Access = router.Access

const (
	AccessEveryone  = router.AccessEveryone
	AccessOwnerOnly = router.AccessOwnerOnly
)

type Command = router.Command

type Request = router.Request

type HandlerFunc = router.HandlerFunc

type CallbackHandlerFunc = router.CallbackHandlerFunc

type CallbackRoute = router.CallbackRoute

type CallbackAccess = router.CallbackAccess

const (
	CallbackAccessOwnerOnly = router.CallbackAccessOwnerOnly
	CallbackAccessEveryone  = router.CallbackAccessEveryone
)

type Services = router.Services

type CommandManager = router.CommandManager

// PluginConfigRaw is the raw per-plugin config blob inside config.Config.
type PluginConfigRaw = config.PluginConfigRaw

// StopReason says why a plugin is being stopped.
type StopReason string

const (
	StopShutdown         StopReason = "shutdown"
	StopPluginDisable    StopReason = "plugin_disable"
	StopPluginQuarantine StopReason = "plugin_quarantine"
)
