// Package plugins lets a third-party Anthropic-compatible model backend ship
// as a standalone executable instead of a compiled-in provider.Provider. A
// plugin process speaks net/rpc over a handshake'd stdio/unix-socket
// connection managed by hashicorp/go-plugin; the host only ever sees a
// provider.Provider.
package plugins

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/provider"
)

// Handshake is the magic-cookie pair go-plugin uses to confirm the child
// process was actually launched as a goosecore provider plugin and not some
// unrelated executable on PATH.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GOOSECORE_PROVIDER_PLUGIN",
	MagicCookieValue: "v1",
}

// completeArgs/completeReply are the gob-safe wire shapes for Provider.Complete.
// provider.Error's Err field is a plain error, which gob cannot decode back
// into an interface, so it is flattened to a string on the wire.
type completeArgs struct {
	System   string
	Messages []agent.Message
	Tools    []agent.Tool
}

type completeReply struct {
	Message  agent.Message
	Usage    agent.Usage
	ErrKind  provider.ErrorKind
	ErrMsg   string
	HasError bool
}

// ProviderRPCServer runs inside the plugin process and dispatches incoming
// net/rpc calls to a real provider.Provider implementation.
type ProviderRPCServer struct {
	Impl provider.Provider
}

func (s *ProviderRPCServer) Metadata(_ struct{}, reply *provider.Metadata) error {
	*reply = s.Impl.Metadata()
	return nil
}

func (s *ProviderRPCServer) GetModelConfig(_ struct{}, reply *provider.ModelConfig) error {
	*reply = s.Impl.GetModelConfig()
	return nil
}

func (s *ProviderRPCServer) Complete(args completeArgs, reply *completeReply) error {
	msg, usage, err := s.Impl.Complete(context.Background(), args.System, args.Messages, args.Tools)
	reply.Message = msg
	reply.Usage = usage
	if err != nil {
		reply.HasError = true
		reply.ErrKind = err.Kind
		reply.ErrMsg = err.Message
	}
	return nil
}

// providerRPCClient runs in the host process and implements provider.Provider
// by forwarding every call across the net/rpc connection.
type providerRPCClient struct {
	client *rpc.Client
}

func (c *providerRPCClient) Metadata() provider.Metadata {
	var reply provider.Metadata
	_ = c.client.Call("Plugin.Metadata", struct{}{}, &reply)
	return reply
}

func (c *providerRPCClient) GetModelConfig() provider.ModelConfig {
	var reply provider.ModelConfig
	_ = c.client.Call("Plugin.GetModelConfig", struct{}{}, &reply)
	return reply
}

func (c *providerRPCClient) Complete(_ context.Context, system string, messages []agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *provider.Error) {
	var reply completeReply
	if err := c.client.Call("Plugin.Complete", completeArgs{System: system, Messages: messages, Tools: tools}, &reply); err != nil {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrRequestFailed, Message: "plugin rpc call failed", Err: err}
	}
	if reply.HasError {
		return agent.Message{}, agent.Usage{}, &provider.Error{Kind: reply.ErrKind, Message: reply.ErrMsg}
	}
	return reply.Message, reply.Usage, nil
}

// ProviderPlugin is the plugin.Plugin implementation go-plugin dispenses on
// both sides of the handshake.
type ProviderPlugin struct {
	Impl provider.Provider
}

func (p *ProviderPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ProviderRPCServer{Impl: p.Impl}, nil
}

func (*ProviderPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &providerRPCClient{client: c}, nil
}

// Serve runs forever, exposing impl as a provider plugin over stdio. A
// plugin executable's main() calls this and nothing else.
func Serve(impl provider.Provider) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			"provider": &ProviderPlugin{Impl: impl},
		},
	})
}

// Load launches path as a subprocess provider plugin and returns a
// provider.Provider that forwards to it, plus a closer that kills the
// subprocess. Grounded on plugins/grpc/loader.go's GRPCLoader.Load, adapted
// from gRPC+protobuf dispense to the simpler net/rpc plugin.Plugin protocol
// so a plugin author needs no protoc toolchain.
func Load(path string, args []string, logLevel hclog.Level) (provider.Provider, func() error, error) {
	logger := hclog.New(&hclog.LoggerOptions{Name: "goosecore-provider-plugin", Level: logLevel})

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          map[string]plugin.Plugin{"provider": &ProviderPlugin{}},
		Cmd:              exec.Command(path, args...),
		Logger:           logger,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("connect to provider plugin %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense("provider")
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("dispense provider plugin %s: %w", path, err)
	}

	prov, ok := raw.(provider.Provider)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin %s does not implement provider.Provider", path)
	}

	return prov, func() error {
		client.Kill()
		return nil
	}, nil
}
