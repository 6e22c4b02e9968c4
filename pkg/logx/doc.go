// Package logx configures castbot's structured logging.
//
// Components log through logx.Logger, a small value type on top of zerolog:
//   - console output stays readable (short timestamp + short caller)
//   - file output is JSON lines
//   - an optional chat sink forwards warnings to an operator group (min-level + rate limit)
package logx
