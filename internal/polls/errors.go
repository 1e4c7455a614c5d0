package polls

import "fmt"

// ServiceError wraps a storage failure with a stable code of the form <operation>.<reason>.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "polls.service.new"
	opCreatePoll       = "polls.create"
	opListPolls        = "polls.list"
	opGetPoll          = "polls.get"
	opCastVote         = "polls.vote"
	opHasVoted         = "polls.has_voted"
	opSetActive        = "polls.set_active"
	opCreateShareLink  = "polls.share.create"
	opActiveShareLinks = "polls.share.list"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
