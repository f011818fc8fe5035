// Package tsh contains shared tsh constructs: constants, variables, etc. used
// across the job table, proc mirror, signal, and evaluator packages.
package tsh

const (
	// MaxJobs is the number of slots in the job table. jid values are drawn
	// from [1, MaxJobs] and recycled once the table has been full.
	MaxJobs = 16
	// HistorySize is the number of most-recent command lines retained in the
	// in-memory history ring.
	HistorySize = 10
	// HistoryFileLines is the number of lines a history file is allowed to
	// accumulate between sessions before the shell truncates it on quit.
	HistoryFileLines = 16
)

const (
	// Prompt is emitted at the start of every read/eval iteration except the
	// one immediately following a successful login.
	Prompt = "tsh> "
)
