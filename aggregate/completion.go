package aggregate

import (
	"fmt"
	"time"

	"github.com/fxsml/goaggregate/message"
)

// DefaultKey is the correlation key used when no correlation expression is configured.
const DefaultKey = "__default__"

// Exchange properties set on aggregated results.
const (
	// PropAggregatedSize holds the number of units merged into the group.
	PropAggregatedSize = "aggregated_size"
	// PropAggregatedCompletedBy holds the CompletedBy cause as a string.
	PropAggregatedCompletedBy = "aggregated_completed_by"
	// PropAggregatedCorrelationKey holds the correlation key of the group.
	PropAggregatedCorrelationKey = "aggregated_correlation_key"
	// PropAggregatedTimeout holds the timeout duration in effect when a group timed out.
	PropAggregatedTimeout = "aggregated_timeout"

	// PropCompleteCurrentGroup, when true on a unit, completes its group after the merge.
	PropCompleteCurrentGroup = "aggregation_complete_current_group"
)

// Control headers read from incoming units.
const (
	// HeaderCompleteAllGroups forces completion of every open group.
	// The carrying unit is used as a signal only and is not aggregated.
	HeaderCompleteAllGroups = "aggregation_complete_all_groups"

	// HeaderCompleteAllGroupsInclusive merges the carrying unit first,
	// then forces completion of every open group.
	HeaderCompleteAllGroupsInclusive = "aggregation_complete_all_groups_inclusive"
)

// CompletedBy is the cause that completed a group.
type CompletedBy string

const (
	CompletedBySize      CompletedBy = "size"
	CompletedByPredicate CompletedBy = "predicate"
	CompletedByStrategy  CompletedBy = "strategy"
	CompletedByTimeout   CompletedBy = "timeout"
	CompletedByInterval  CompletedBy = "interval"
	CompletedByForce     CompletedBy = "force"
)

func (c CompletedBy) String() string {
	return string(c)
}

// TimeoutFrom selects the instant a completion timeout is measured from.
type TimeoutFrom int

const (
	// FromLastUpdate restarts the timeout on every merged unit.
	FromLastUpdate TimeoutFrom = iota
	// FromCreation measures the timeout from the first merged unit of the group.
	FromCreation
)

func (t TimeoutFrom) String() string {
	if t == FromCreation {
		return "creation"
	}
	return "last-update"
}

// UnmarshalText accepts "creation" and "last-update". Empty text selects FromLastUpdate.
func (t *TimeoutFrom) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "last-update":
		*t = FromLastUpdate
	case "creation":
		*t = FromCreation
	default:
		return fmt.Errorf("aggregate: unknown timeout origin %q", text)
	}
	return nil
}

// Completion describes a finalized group.
type Completion struct {
	Key         string
	Result      *message.Exchange
	CompletedBy CompletedBy
	Size        int
	// Total is the expected size, or -1 when completion is not size based.
	Total    int
	Timeout  time.Duration
	Created  time.Time
	Duration time.Duration
	discard  bool
}
