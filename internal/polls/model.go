package polls

import (
	"errors"
	"time"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000
	maxOptionLength      = 200
	minOptions           = 2
	maxOptions           = 20
)

var (
	// ErrTitleRequired indicates the poll title is blank.
	ErrTitleRequired = errors.New("polls: title is required")
	// ErrTitleTooLong indicates the poll title exceeds its storage bound.
	ErrTitleTooLong = errors.New("polls: title is too long")
	// ErrDescriptionTooLong indicates the description exceeds its storage bound.
	ErrDescriptionTooLong = errors.New("polls: description is too long")
	// ErrNotEnoughOptions indicates fewer than two non-blank options were supplied.
	ErrNotEnoughOptions = errors.New("polls: at least 2 options are required")
	// ErrTooManyOptions indicates more options than a poll may carry.
	ErrTooManyOptions = errors.New("polls: too many options")
	// ErrOptionTooLong indicates an option text exceeds its storage bound.
	ErrOptionTooLong = errors.New("polls: option is too long")
	// ErrOwnerRequired indicates the poll creator is unknown.
	ErrOwnerRequired = errors.New("polls: owner is required")
	// ErrPollNotFound indicates no poll exists with the requested id.
	ErrPollNotFound = errors.New("polls: poll not found")
	// ErrPollClosed indicates the poll no longer accepts votes.
	ErrPollClosed = errors.New("polls: poll is closed")
	// ErrOptionMismatch indicates the option does not belong to the poll.
	ErrOptionMismatch = errors.New("polls: option does not belong to poll")
	// ErrVoterRequired indicates a vote carried neither a user nor an address.
	ErrVoterRequired = errors.New("polls: voter identity is required")
	// ErrAlreadyVoted indicates the voter already voted on the poll.
	ErrAlreadyVoted = errors.New("polls: already voted")
	// ErrNotOwner indicates the caller does not own the poll.
	ErrNotOwner = errors.New("polls: only the poll owner may do this")
)

// Poll is a question with a fixed set of options.
type Poll struct {
	ID          string       `gorm:"column:id;primaryKey;size:36;not null"`
	CreatedAt   time.Time    `gorm:"column:created_at;not null;index"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;not null"`
	Title       string       `gorm:"column:title;size:200;not null"`
	Description *string      `gorm:"column:description;type:text"`
	CreatedBy   string       `gorm:"column:created_by;size:36;not null;index"`
	IsActive    bool         `gorm:"column:is_active;not null"`
	Options     []PollOption `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (Poll) TableName() string {
	return "polls"
}

// DescriptionText returns the description or an empty string.
func (p Poll) DescriptionText() string {
	if p.Description == nil {
		return ""
	}
	return *p.Description
}

// PollOption is one selectable choice; Position defines display order.
type PollOption struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	PollID    string    `gorm:"column:poll_id;size:36;not null;index:idx_poll_options_poll_position,priority:1"`
	Text      string    `gorm:"column:text;size:200;not null"`
	Position  int       `gorm:"column:position;not null;index:idx_poll_options_poll_position,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PollOption) TableName() string {
	return "poll_options"
}

// Vote records one voter's choice. Signed-in voters are keyed by user, anonymous voters by address.
type Vote struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	PollID    string    `gorm:"column:poll_id;size:36;not null;index;uniqueIndex:idx_votes_poll_user,where:user_id IS NOT NULL;uniqueIndex:idx_votes_poll_ip,where:user_id IS NULL AND voter_ip IS NOT NULL"`
	OptionID  string    `gorm:"column:option_id;size:36;not null;index"`
	UserID    *string   `gorm:"column:user_id;size:36;uniqueIndex:idx_votes_poll_user"`
	VoterIP   *string   `gorm:"column:voter_ip;size:64;uniqueIndex:idx_votes_poll_ip"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// QRCode is a share link pointing at a poll, optionally expiring.
type QRCode struct {
	ID        string     `gorm:"column:id;primaryKey;size:36;not null"`
	PollID    string     `gorm:"column:poll_id;size:36;not null;index"`
	URL       string     `gorm:"column:url;size:512;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
}

// TableName provides the explicit table binding for GORM.
func (QRCode) TableName() string {
	return "qr_codes"
}

// CreatePollInput is the payload of the create-poll form.
type CreatePollInput struct {
	Title       string
	Description string
	Options     []string
	UserID      string
}

// VoteInput identifies a vote. At least one of UserID and VoterIP is required.
type VoteInput struct {
	PollID   string
	OptionID string
	UserID   string
	VoterIP  string
}

// ListOptions pages through poll listings.
type ListOptions struct {
	Limit  int
	Offset int
}

// PollSummary is a poll row with aggregate counts for listings.
type PollSummary struct {
	Poll        Poll
	OptionCount int
	TotalVotes  int
}

// OptionTally is an option with its vote count and rounded share of the total.
type OptionTally struct {
	Option     PollOption
	Votes      int
	Percentage int
}

// PollDetail is a poll with its ordered options and tallies.
type PollDetail struct {
	Poll       Poll
	Options    []OptionTally
	TotalVotes int
}
