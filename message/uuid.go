package message

import "github.com/google/uuid"

// IDGenerator generates unique exchange IDs.
type IDGenerator func() string

// DefaultIDGenerator is used by New and CorrelatedCopy to generate IDs.
// Replace it in tests that need deterministic IDs.
var DefaultIDGenerator IDGenerator = uuid.NewString
