package shared

// Dispatch and communication permissions.
const (
	PermDispatchView   = "dispatch.view"
	PermDispatchCreate = "dispatch.create"
	PermDispatchUpdate = "dispatch.update"
	PermDispatchCancel = "dispatch.cancel"

	PermNotificationsView = "notifications.view"
	PermMessagesView      = "messages.view"
	PermMessagesSend      = "messages.send"
)

// DispatchScopes lists dispatch workflow permissions.
func DispatchScopes() []string {
	return []string{
		PermDispatchView,
		PermDispatchCreate,
		PermDispatchUpdate,
		PermDispatchCancel,
	}
}

// CommsScopes lists notification and messaging permissions.
func CommsScopes() []string {
	return []string{
		PermNotificationsView,
		PermMessagesView,
		PermMessagesSend,
	}
}

// AllScopes returns every permission known to the application.
func AllScopes() []string {
	all := CoreScopes()
	all = append(all, WarehouseScopes()...)
	all = append(all, DispatchScopes()...)
	all = append(all, CommsScopes()...)
	return all
}
