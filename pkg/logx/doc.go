// Package logx configures remindbot's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog so that:
//   - console output stays readable (short timestamp + short caller)
//   - file output stays JSON-structured
//   - an optional Telegram log chat receives warnings (min-level + rate limiting)
package logx
