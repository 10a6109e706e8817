package domain

// Notification is a single inbox entry produced as a command side effect.
type Notification struct {
	TaskID    uint64 `json:"taskId"`
	From      string `json:"from"`
	Title     string `json:"title"`
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
}

// NotificationInbox is the per-recipient bounded queue of notifications,
// oldest first. Any ledger owner who assigns work to the recipient may append
// to it through the command processor; only the read flag is mutable after
// the fact.
type NotificationInbox struct {
	Owner         string         `json:"owner"`
	Notifications []Notification `json:"notifications"`
	Bump          uint8          `json:"bump"`
}

// NewNotificationInbox creates an empty inbox for owner.
func NewNotificationInbox(owner string) *NotificationInbox {
	return &NotificationInbox{Owner: owner, Notifications: []Notification{}}
}

// Append adds a notification, silently evicting the oldest entry when the
// inbox is at capacity. Eviction never fails the triggering command.
func (in *NotificationInbox) Append(n Notification) {
	if len(in.Notifications) >= MaxNotifications {
		in.Notifications = in.Notifications[1:]
	}
	in.Notifications = append(in.Notifications, n)
}

// MarkRead flags the notification at index as read. It is idempotent; an
// out-of-range index fails with ErrNotificationNotFound.
func (in *NotificationInbox) MarkRead(index int) error {
	if index < 0 || index >= len(in.Notifications) {
		return ErrNotificationNotFound
	}
	in.Notifications[index].Read = true
	return nil
}
