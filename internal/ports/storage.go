package ports

// SettingsPort defines the interface for durable local client state.
// The device id binds this installation to an account and is only
// removed by an explicit reset; the display name is cleared on logout.
type SettingsPort interface {
	DeviceID() string
	SetDeviceID(id string) error

	DisplayName() string
	SetDisplayName(name string) error
	ClearDisplayName() error

	LastMatchID() string
	SetLastMatchID(id string) error
	ClearLastMatchID() error
}
