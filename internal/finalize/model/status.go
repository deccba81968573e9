package model

import (
	"fmt"
	"sort"
	"strings"
)

// Status is a judging verdict as stored in full_status / initial_status.
type Status string

const (
	StatusPending                 Status = "pending"
	StatusOK                      Status = "ok"
	StatusWrongAnswer             Status = "wa"
	StatusTimeLimitExceeded       Status = "tle"
	StatusMemoryLimitExceeded     Status = "mle"
	StatusOutputLimitExceeded     Status = "ole"
	StatusRuntimeError            Status = "rte"
	StatusCompilationError        Status = "compilation_error"
	StatusCheckerCompilationError Status = "checker_compilation_error"
	StatusJudgeError              Status = "judge_error"
)

// Preference ranks used to break score ties; higher wins.
const (
	RankUnjudged    = 0
	RankNotCompiled = 1
	RankJudgedFail  = 2
	RankJudgeError  = 3
	RankAccepted    = 4
)

var statusRanks = map[Status]int{
	StatusPending:                 RankUnjudged,
	StatusCompilationError:        RankNotCompiled,
	StatusCheckerCompilationError: RankNotCompiled,
	StatusWrongAnswer:             RankJudgedFail,
	StatusTimeLimitExceeded:       RankJudgedFail,
	StatusMemoryLimitExceeded:     RankJudgedFail,
	StatusOutputLimitExceeded:     RankJudgedFail,
	StatusRuntimeError:            RankJudgedFail,
	StatusJudgeError:              RankJudgeError,
	StatusOK:                      RankAccepted,
}

// Rank returns the tie-break preference of s. Unknown values rank as unjudged.
func (s Status) Rank() int {
	return statusRanks[s]
}

// Valid reports whether s is a known verdict.
func (s Status) Valid() bool {
	_, ok := statusRanks[s]
	return ok
}

// ParseStatus accepts the stored spelling, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// RankedStatuses lists every known status sorted by name, for building
// deterministic SQL rank expressions.
func RankedStatuses() []Status {
	out := make([]Status, 0, len(statusRanks))
	for s := range statusRanks {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StatusField selects which verdict column a rule consults.
type StatusField string

const (
	FieldNone    StatusField = ""
	FieldFull    StatusField = "full_status"
	FieldInitial StatusField = "initial_status"
)

// Column returns the SQL column backing the field.
func (f StatusField) Column() string {
	return string(f)
}
