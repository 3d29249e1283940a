package model

import (
	"errors"
	"fmt"
)

// ErrNoCandidates is returned when no eligible assignee remains after
// filtering inactive and reporter-role candidates.
var ErrNoCandidates = errors.New("no eligible candidates")

// ErrIssueClosed is returned when an operation is asked to consider a DONE issue.
var ErrIssueClosed = errors.New("issue is closed")

// NoCandidatesError describes why the candidate list came up empty.
// It matches ErrNoCandidates with errors.Is.
type NoCandidatesError struct {
	IssueID   string
	Total     int
	Inactive  int
	Reporters int
}

func (e *NoCandidatesError) Error() string {
	return fmt.Sprintf("issue %s: %v (%d supplied, %d inactive, %d reporters)",
		e.IssueID, ErrNoCandidates, e.Total, e.Inactive, e.Reporters)
}

// Is makes errors.Is(err, ErrNoCandidates) succeed.
func (e *NoCandidatesError) Is(target error) bool {
	return target == ErrNoCandidates
}
