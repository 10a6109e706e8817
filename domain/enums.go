package domain

import "fmt"

// TaskStatus is the lifecycle state of a task. Completed and Cancelled are
// terminal.
type TaskStatus uint8

const (
	StatusPending TaskStatus = iota
	StatusInProgress
	StatusCompleted
	StatusCancelled
)

var statusNames = map[TaskStatus]string{
	StatusPending:    "pending",
	StatusInProgress: "inProgress",
	StatusCompleted:  "completed",
	StatusCancelled:  "cancelled",
}

func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no further transitions are permitted out of s.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseTaskStatus rejects tags outside the defined set.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	for s, name := range statusNames {
		if name == raw {
			return s, nil
		}
	}
	return 0, ErrInvalidStatusTransition
}

func (s TaskStatus) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, ErrInvalidStatusTransition
	}
	return []byte(`"` + name + `"`), nil
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTaskStatus(unquote(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TaskPriority is how urgent a task is.
type TaskPriority uint8

const (
	PriorityLeisure TaskPriority = iota
	PriorityCasual
	PriorityUrgent
)

var priorityNames = map[TaskPriority]string{
	PriorityLeisure: "leisure",
	PriorityCasual:  "casual",
	PriorityUrgent:  "urgent",
}

func (p TaskPriority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", uint8(p))
}

// ParseTaskPriority rejects tags outside the defined set.
func ParseTaskPriority(raw string) (TaskPriority, error) {
	for p, name := range priorityNames {
		if name == raw {
			return p, nil
		}
	}
	return 0, ErrInvalidPriority
}

func (p TaskPriority) MarshalJSON() ([]byte, error) {
	name, ok := priorityNames[p]
	if !ok {
		return nil, ErrInvalidPriority
	}
	return []byte(`"` + name + `"`), nil
}

func (p *TaskPriority) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTaskPriority(unquote(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// TaskCategory groups tasks on the board.
type TaskCategory uint8

const (
	CategoryWork TaskCategory = iota
	CategoryPersonal
	CategoryHome
	CategoryShopping
)

var categoryNames = map[TaskCategory]string{
	CategoryWork:     "work",
	CategoryPersonal: "personal",
	CategoryHome:     "home",
	CategoryShopping: "shopping",
}

func (c TaskCategory) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// ParseTaskCategory rejects tags outside the defined set.
func ParseTaskCategory(raw string) (TaskCategory, error) {
	for c, name := range categoryNames {
		if name == raw {
			return c, nil
		}
	}
	return 0, ErrInvalidCategory
}

func (c TaskCategory) MarshalJSON() ([]byte, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, ErrInvalidCategory
	}
	return []byte(`"` + name + `"`), nil
}

func (c *TaskCategory) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTaskCategory(unquote(data))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func unquote(data []byte) string {
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		return string(data[1 : len(data)-1])
	}
	return string(data)
}
