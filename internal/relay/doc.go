// Package relay renders hostel form submissions into Telegram Markdown
// messages and delivers them to a chat through the Bot API sendMessage
// endpoint.
//
// Every delivery outcome is returned as a Result value. Callers decide
// what the end user sees; a failed notification never turns into an
// error or panic at this boundary.
package relay
