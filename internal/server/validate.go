package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/taskwire"
)

// acceptedDateLayouts are the timestamp formats a change may carry.
var acceptedDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ValidateChange checks a change record's shape and reports only the
// first failure, in field order. A failed record is neither applied nor
// ledgered, so a corrected resubmission with the same ID can succeed
// later.
func ValidateChange(c taskwire.Change) error {
	if c.ID == "" {
		return fmt.Errorf("The id field is required.")
	}
	if !isUUID(c.ID) {
		return fmt.Errorf("The id must be a valid UUID.")
	}

	if c.Type == "" {
		return fmt.Errorf("The change type field is required.")
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("The selected change type is invalid.")
	}

	if c.TaskID == "" {
		return fmt.Errorf("The task id field is required.")
	}
	if !isUUID(c.TaskID) {
		return fmt.Errorf("The task id must be a valid UUID.")
	}

	if c.Type.RequiresName() && c.TaskName == "" {
		return fmt.Errorf("The task name field is required when change type is %s.", c.Type)
	}
	if len(c.TaskName) > taskwire.MaxTaskNameLength {
		return fmt.Errorf("The task name may not be greater than %d characters.", taskwire.MaxTaskNameLength)
	}

	if c.CreatedAt == "" {
		return fmt.Errorf("The created at field is required.")
	}
	if _, err := ParseDate(c.CreatedAt); err != nil {
		return fmt.Errorf("The created at is not a valid date.")
	}

	return nil
}

// ParseDate parses a change timestamp in any accepted layout.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range acceptedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
