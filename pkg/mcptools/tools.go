package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/indi-protocol/indi-go/pkg/client"
	"github.com/indi-protocol/indi-go/pkg/driver"
	"github.com/indi-protocol/indi-go/pkg/model"
)

// DefaultWaitTimeout bounds how long a tool waits for a vector to appear.
const DefaultWaitTimeout = 5 * time.Second

// Tools implements the MCP tool handlers over one client.
type Tools struct {
	client  *client.Client
	timeout time.Duration
}

// New creates the tool set for c.
func New(c *client.Client) *Tools {
	return &Tools{client: c, timeout: DefaultWaitTimeout}
}

// SetWaitTimeout sets the default wait for get_property when the call
// gives no timeout. Non-positive values are ignored.
func (t *Tools) SetWaitTimeout(d time.Duration) {
	if d > 0 {
		t.timeout = d
	}
}

// NewServer returns an MCP server with every tool registered.
func NewServer(c *client.Client, version string) *server.MCPServer {
	s := server.NewMCPServer("indi", version)
	New(c).Register(s)
	return s
}

// Register adds the tools to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_devices",
		mcp.WithDescription("List the INDI devices and their property names"),
	), t.handleListDevices)

	s.AddTool(mcp.NewTool("get_property",
		mcp.WithDescription("Read the current state and element values of one property vector"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device name")),
		mcp.WithString("property", mcp.Required(), mcp.Description("Property vector name")),
		mcp.WithNumber("timeout", mcp.Description("Seconds to wait for the property to be defined")),
	), t.handleGetProperty)

	s.AddTool(mcp.NewTool("set_number",
		mcp.WithDescription("Request a new value for one element of a number vector"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device name")),
		mcp.WithString("property", mcp.Required(), mcp.Description("Property vector name")),
		mcp.WithString("element", mcp.Required(), mcp.Description("Element name")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("New value")),
	), t.handleSetNumber)

	s.AddTool(mcp.NewTool("set_text",
		mcp.WithDescription("Request a new value for one element of a text vector"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device name")),
		mcp.WithString("property", mcp.Required(), mcp.Description("Property vector name")),
		mcp.WithString("element", mcp.Required(), mcp.Description("Element name")),
		mcp.WithString("value", mcp.Required(), mcp.Description("New value")),
	), t.handleSetText)

	s.AddTool(mcp.NewTool("set_switch",
		mcp.WithDescription("Turn one switch of a switch vector On"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device name")),
		mcp.WithString("property", mcp.Required(), mcp.Description("Property vector name")),
		mcp.WithString("element", mcp.Required(), mcp.Description("Switch to turn On")),
	), t.handleSetSwitch)

	s.AddTool(mcp.NewTool("connect_device",
		mcp.WithDescription("Connect or disconnect a device through its CONNECTION property"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device name")),
		mcp.WithBoolean("connect", mcp.Description("false disconnects (default: true)")),
	), t.handleConnectDevice)

	s.AddTool(mcp.NewTool("recent_messages",
		mcp.WithDescription("Show the most recent message elements received from the server"),
	), t.handleRecentMessages)
}

type deviceSummary struct {
	Name       string   `json:"name"`
	Properties []string `json:"properties"`
}

type elementValue struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Value any    `json:"value"`
}

type propertyValue struct {
	Device   string         `json:"device"`
	Name     string         `json:"name"`
	Kind     string         `json:"kind"`
	Label    string         `json:"label,omitempty"`
	Group    string         `json:"group,omitempty"`
	State    string         `json:"state"`
	Perm     string         `json:"perm,omitempty"`
	Elements []elementValue `json:"elements"`
}

func (t *Tools) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := t.client.State()
	devices := state.Devices()
	out := make([]deviceSummary, 0, len(devices))
	for _, name := range devices {
		ds := deviceSummary{Name: name}
		for _, v := range state.Properties(name) {
			ds.Properties = append(ds.Properties, v.Name)
		}
		out = append(out, ds)
	}
	return jsonResult(out)
}

func (t *Tools) handleGetProperty(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	device, name, errResult := deviceAndProperty(request)
	if errResult != nil {
		return errResult, nil
	}
	timeout := t.timeout
	if secs := request.GetFloat("timeout", 0); secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := t.client.WaitFor(ctx, device, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s.%s: %v", device, name, err)), nil
	}
	return jsonResult(describe(v))
}

func (t *Tools) handleSetNumber(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, el, errResult := t.target(request, model.KindNumber)
	if errResult != nil {
		return errResult, nil
	}
	value, err := request.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError("value is required and must be a number"), nil
	}
	v.Elements = []model.Element{{Name: el, Number: model.Number{Value: value}}}
	return t.send(v)
}

func (t *Tools) handleSetText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, el, errResult := t.target(request, model.KindText)
	if errResult != nil {
		return errResult, nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError("value is required and must be a string"), nil
	}
	v.Elements = []model.Element{{Name: el, Text: value}}
	return t.send(v)
}

func (t *Tools) handleSetSwitch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	v, el, errResult := t.target(request, model.KindSwitch)
	if errResult != nil {
		return errResult, nil
	}
	v.Elements = []model.Element{{Name: el, Switch: model.SwitchOn}}
	return t.send(v)
}

func (t *Tools) handleConnectDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	device, err := request.RequireString("device")
	if err != nil {
		return mcp.NewToolResultError("device is required and must be a string"), nil
	}
	element := driver.Connect
	if !request.GetBool("connect", true) {
		element = driver.Disconnect
	}
	if err := t.client.SendSwitch(device, driver.Connection, element); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("requested %s on %s", element, device)), nil
}

func (t *Tools) handleRecentMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msgs := t.client.State().Messages()
	type line struct {
		Device    string    `json:"device,omitempty"`
		Timestamp time.Time `json:"timestamp"`
		Text      string    `json:"text"`
	}
	out := make([]line, len(msgs))
	for i, m := range msgs {
		out[i] = line{Device: m.Device, Timestamp: m.Timestamp, Text: m.Text}
	}
	return jsonResult(out)
}

// target resolves the vector a set_* tool addresses and checks it against
// the mirror when the vector is known.
func (t *Tools) target(request mcp.CallToolRequest, kind model.Kind) (model.Vector, string, *mcp.CallToolResult) {
	device, name, errResult := deviceAndProperty(request)
	if errResult != nil {
		return model.Vector{}, "", errResult
	}
	element, err := request.RequireString("element")
	if err != nil {
		return model.Vector{}, "", mcp.NewToolResultError("element is required and must be a string")
	}

	if current, ok := t.client.State().Vector(device, name); ok {
		if current.Kind != kind {
			return model.Vector{}, "", mcp.NewToolResultError(
				fmt.Sprintf("%s.%s is a %s vector", device, name, current.Kind))
		}
		if !current.Perm.CanWrite() {
			return model.Vector{}, "", mcp.NewToolResultError(
				fmt.Sprintf("%s.%s is read-only", device, name))
		}
		if current.Index(element) < 0 {
			return model.Vector{}, "", mcp.NewToolResultError(
				fmt.Sprintf("%s.%s has no element %s", device, name, element))
		}
	}
	return model.Vector{Kind: kind, Device: device, Name: name}, element, nil
}

func (t *Tools) send(v model.Vector) (*mcp.CallToolResult, error) {
	if err := t.client.SendNew(v); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("sent new%sVector %s", v.Kind, v.Key())), nil
}

func deviceAndProperty(request mcp.CallToolRequest) (string, string, *mcp.CallToolResult) {
	device, err := request.RequireString("device")
	if err != nil {
		return "", "", mcp.NewToolResultError("device is required and must be a string")
	}
	name, err := request.RequireString("property")
	if err != nil {
		return "", "", mcp.NewToolResultError("property is required and must be a string")
	}
	return device, name, nil
}

func describe(v model.Vector) propertyValue {
	out := propertyValue{
		Device:   v.Device,
		Name:     v.Name,
		Kind:     v.Kind.String(),
		Label:    v.Label,
		Group:    v.Group,
		State:    v.State.String(),
		Elements: make([]elementValue, len(v.Elements)),
	}
	if v.Kind != model.KindLight {
		out.Perm = v.Perm.String()
	}
	for i, el := range v.Elements {
		out.Elements[i] = elementValue{Name: el.Name, Label: el.Label, Value: client.ElementValue(v.Kind, el)}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
