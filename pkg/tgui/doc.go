// Package tgui provides small Telegram UI helpers: inline keyboard builders,
// callback data helpers ("prefix:action:payload"), a message builder that is
// safe for ParseMode=HTML, and a token store for callback payloads that do not
// fit in 64 bytes.
package tgui
