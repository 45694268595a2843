package domain

// RolePicker is a persisted self-service role menu posted in a
// channel. Members open it through a button and toggle the roles
// listed in its entries.
type RolePicker struct {
	ID        int64
	GuildID   int64
	ChannelID int64
	MessageID int64
	Title     string

	Entries []*RolePickerEntry
}

// RolePickerEntry is one selectable role inside a picker.
type RolePickerEntry struct {
	ID       int64
	PickerID int64
	RoleID   int64
	Message  string
}
