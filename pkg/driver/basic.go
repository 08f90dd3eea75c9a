package driver

import (
	"context"
	"strconv"
	"sync"

	"github.com/indi-protocol/indi-go/pkg/model"
)

// Standard property and element names.
const (
	Connection = "CONNECTION"
	Connect    = "CONNECT"
	Disconnect = "DISCONNECT"

	DriverInfo      = "DRIVER_INFO"
	DriverName      = "DRIVER_NAME"
	DriverExec      = "DRIVER_EXEC"
	DriverVersion   = "DRIVER_VERSION"
	DriverInterface = "DRIVER_INTERFACE"

	MainControl = "Main Control"
	GeneralInfo = "General Info"
)

// Config describes a device served by Basic.
type Config struct {
	// Device is the device name.
	Device string

	// DriverName, Exec, Version and Interface fill DRIVER_INFO.
	DriverName string
	Exec       string
	Version    string
	Interface  uint32

	// Vectors are defined after CONNECTION and DRIVER_INFO.
	Vectors []model.Vector
}

// Basic accepts every validated request and commits it in state Ok.
type Basic struct {
	mu        sync.Mutex
	config    Config
	connected bool

	// OnNew is called with each accepted proposal (optional).
	OnNew func(model.Vector)
}

// New creates a Basic driver.
func New(config Config) *Basic {
	if config.DriverName == "" {
		config.DriverName = config.Device
	}
	if config.Version == "" {
		config.Version = "1.0"
	}
	return &Basic{config: config}
}

// Name returns the device name.
func (b *Basic) Name() string {
	return b.config.Device
}

// Properties returns CONNECTION, DRIVER_INFO and the configured vectors.
func (b *Basic) Properties() []model.Vector {
	props := []model.Vector{ConnectionVector(b.config.Device), b.driverInfo()}
	for _, v := range b.config.Vectors {
		v = v.Clone()
		v.Device = b.config.Device
		props = append(props, v)
	}
	return props
}

// HandleNew commits the proposal in state Ok.
func (b *Basic) HandleNew(ctx context.Context, proposed model.Vector) (model.Vector, error) {
	if err := ctx.Err(); err != nil {
		return model.Vector{}, err
	}

	if proposed.Name == Connection {
		if el, ok := proposed.Element(Connect); ok {
			b.mu.Lock()
			b.connected = el.Switch == model.SwitchOn
			b.mu.Unlock()
		}
	}

	proposed.State = model.StateOk
	if b.OnNew != nil {
		b.OnNew(proposed.Clone())
	}
	return proposed, nil
}

// Connected reports whether CONNECT was last switched On.
func (b *Basic) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Basic) driverInfo() model.Vector {
	return model.Vector{
		Kind:   model.KindText,
		Device: b.config.Device,
		Name:   DriverInfo,
		Label:  "Driver Info",
		Group:  GeneralInfo,
		Perm:   model.PermRO,
		State:  model.StateIdle,
		Elements: []model.Element{
			{Name: DriverName, Label: "Name", Text: b.config.DriverName},
			{Name: DriverExec, Label: "Exec", Text: b.config.Exec},
			{Name: DriverVersion, Label: "Version", Text: b.config.Version},
			{Name: DriverInterface, Label: "Interface", Text: strconv.FormatUint(uint64(b.config.Interface), 10)},
		},
	}
}

// ConnectionVector returns the standard CONNECTION switch, disconnected.
// Connecting completes within HandleNew, so the vector has no timeout.
func ConnectionVector(device string) model.Vector {
	return model.Vector{
		Kind:   model.KindSwitch,
		Device: device,
		Name:   Connection,
		Label:  "Connection",
		Group:  MainControl,
		Perm:   model.PermRW,
		State:  model.StateIdle,
		Rule:   model.RuleOneOfMany,
		Elements: []model.Element{
			{Name: Connect, Label: "Connect", Switch: model.SwitchOff},
			{Name: Disconnect, Label: "Disconnect", Switch: model.SwitchOn},
		},
	}
}
