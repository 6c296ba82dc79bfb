// Package state keeps the per-user conversation sessions of the bot in memory.
// Sessions are reachable only through Store, which serializes access per user.
package state
