// Package tgui holds small helpers for Telegram HTML messages: escaping,
// callback data in the form "plugin:action:payload", inline keyboards and
// a card builder for titled replies.
package tgui
