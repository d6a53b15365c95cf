// Package loop implements the Agent Reply Loop (component G): the
// streaming state machine that interleaves provider completion, tool
// dispatch, permission gating, and context-window recovery. Kept separate
// from package agent (the shared data model) because this package needs
// both package truncate and package permission, and each of those already
// depends on agent for its message/tool types.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goosecore/agentcore/agent"
	"github.com/goosecore/agentcore/internal/logging"
	"github.com/goosecore/agentcore/internal/metrics"
	"github.com/goosecore/agentcore/permission"
	"github.com/goosecore/agentcore/provider"
	"github.com/goosecore/agentcore/truncate"
)

// The two reserved platform tool names the reply loop itself interprets,
// rather than routing to an endpoint or through the ordinary gate path.
const (
	ToolEnableExtension  = "platform__enable_extension"
	ToolSearchExtensions = "platform__search_extensions"
)

// ToolLister is the subset of the Extension Manager the reply loop needs:
// listing prefixed tools and dispatching a call to whichever endpoint owns
// it. Expressed as an interface so the loop can be tested without a real
// extmgr.Manager.
type ToolLister interface {
	GetPrefixedTools(ctx context.Context) ([]agent.Tool, error)
	DispatchToolCall(ctx context.Context, call agent.ToolCall) ([]agent.Content, bool, error)
	Instructions() string
	FrontendTools() map[string]agent.FrontendTool
}

// ExtensionInstaller looks up a known extension configuration by name and
// installs it into the manager backing ToolLister. Only enable_extension
// uses this; everything else in the loop only reads tools/instructions.
type ExtensionInstaller interface {
	Install(ctx context.Context, name string) error
}

// ReadOnlyClassifier is the auxiliary LLM pass smart_approve mode uses to
// decide whether an unannotated tool behaves read-only.
type ReadOnlyClassifier interface {
	ClassifyReadOnly(ctx context.Context, call agent.ToolCall) (bool, error)
}

// SessionRecorder is the narrow interface the reply loop calls into after
// each successful provider response; package session implements it without
// this package needing to import package session.
type SessionRecorder interface {
	Persist(ctx context.Context, cfg agent.SessionConfig, messages []agent.Message, usage agent.Usage)
}

// Confirmation is the caller's answer to a ToolConfirmationRequest or
// EnableExtensionRequest, delivered through HandleConfirmation.
type Confirmation struct {
	RequestID string
	Decision  agent.PermissionDecision
}

// ToolResultArrival is the caller's answer to a FrontendToolRequest,
// delivered through HandleToolResult.
type ToolResultArrival struct {
	RequestID string
	Result    []agent.Content
	Err       *agent.ToolError
}

// Loop is the Agent Reply Loop (component G): the streaming state machine
// described in §4.6. One Loop instance is built per Agent and reused across
// reply invocations; each Reply call gets its own message history snapshot
// but shares the provider, tools, and permission store.
type Loop struct {
	Provider   provider.Provider
	Tools      ToolLister
	Gate       *permission.Gate
	Installer  ExtensionInstaller
	Classifier ReadOnlyClassifier
	Recorder   SessionRecorder

	Mode agent.Mode

	// TokenCount estimates the token cost of one message, used to drive
	// truncation. Required if the provider ever returns ContextLengthExceeded.
	TokenCount truncate.Tokens

	// Budget is the provider's context window, in tokens.
	Budget int

	// SystemPrompt is the caller-supplied base prompt; extension and
	// frontend instructions and the mode addendum are appended to it.
	SystemPrompt string

	Log *slog.Logger

	// Metrics is optional; a nil *metrics.Metrics makes every recorded
	// call a no-op, so it never needs to be set up in tests.
	Metrics *metrics.Metrics

	mu             sync.Mutex
	pendingToolRes map[string]chan ToolResultArrival
	pendingConfirm map[string]chan Confirmation
}

func (l *Loop) logger() *slog.Logger {
	if l.Log == nil {
		return logging.Default()
	}
	return l.Log
}

func (l *Loop) init() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pendingToolRes == nil {
		l.pendingToolRes = make(map[string]chan ToolResultArrival)
	}
	if l.pendingConfirm == nil {
		l.pendingConfirm = make(map[string]chan Confirmation)
	}
}

// HandleToolResult delivers a frontend tool's result to whichever reply
// invocation is awaiting it. A no-op if nothing is awaiting that id.
func (l *Loop) HandleToolResult(arrival ToolResultArrival) {
	l.mu.Lock()
	ch, ok := l.pendingToolRes[arrival.RequestID]
	l.mu.Unlock()
	if ok {
		ch <- arrival
	}
}

// HandleConfirmation delivers a confirmation/enable_extension decision to
// whichever reply invocation is awaiting it.
func (l *Loop) HandleConfirmation(c Confirmation) {
	l.mu.Lock()
	ch, ok := l.pendingConfirm[c.RequestID]
	l.mu.Unlock()
	if ok {
		ch <- c
	}
}

func (l *Loop) awaitToolResult(ctx context.Context, id string) ToolResultArrival {
	ch := make(chan ToolResultArrival, 32)
	l.mu.Lock()
	l.pendingToolRes[id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pendingToolRes, id)
		l.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return ToolResultArrival{RequestID: id, Err: &agent.ToolError{Kind: "cancelled", Message: ctx.Err().Error()}}
	case a := <-ch:
		return a
	}
}

func (l *Loop) awaitConfirmation(ctx context.Context, id string) Confirmation {
	ch := make(chan Confirmation, 32)
	l.mu.Lock()
	l.pendingConfirm[id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pendingConfirm, id)
		l.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return Confirmation{RequestID: id, Decision: agent.DecisionDenyOnce}
	case c := <-ch:
		return c
	}
}

// Reply drives messages through the state machine in §4.6, emitting every
// assistant/user turn on the returned channel in causal order. The channel
// is closed when the loop ends normally (no further tool requests) or
// terminally (an unrecovered provider/truncation error).
func (l *Loop) Reply(ctx context.Context, messages []agent.Message, session *agent.SessionConfig) <-chan agent.Message {
	l.init()
	out := make(chan agent.Message, 8)

	go func() {
		turnStart := time.Now()
		defer func() {
			l.Metrics.RecordLoopTurn(string(l.Mode), time.Since(turnStart))
			close(out)
		}()
		history := append([]agent.Message(nil), messages...)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			systemPrompt := l.buildSystemPrompt()
			tools, err := l.Tools.GetPrefixedTools(ctx)
			if err != nil {
				out <- terminalMessage(fmt.Sprintf("failed to list tools: %v", err))
				return
			}

			msg, usage, perr := l.completeWithTruncation(ctx, systemPrompt, &history, tools)
			if perr != nil {
				out <- terminalMessage(perr.Error())
				return
			}

			if session != nil && l.Recorder != nil {
				snapshot := append(append([]agent.Message(nil), history...), msg)
				go l.Recorder.Persist(detachedContext(ctx), *session, snapshot, usage)
			}

			reqs := toolRequests(msg.Content)
			if len(reqs) == 0 {
				out <- msg
				return
			}

			frontend, enableExt, searchExt, other := l.partition(reqs)

			// Frontend and enable_extension requests get their own dedicated
			// handshake message below, so both are pulled out of the plain
			// assistant turn rather than appearing twice.
			pulledOut := idsOf(frontend)
			for id := range idsOf(enableExt) {
				pulledOut[id] = true
			}
			filtered := stripIDs(msg, pulledOut)
			out <- filtered

			var responses []agent.MessageContent

			for _, req := range frontend {
				out <- agent.Message{
					Role:      agent.RoleAssistant,
					CreatedAt: time.Now().Unix(),
					Content:   []agent.MessageContent{{Type: agent.ContentFrontendToolRequest, ID: req.ID, ToolCall: req.ToolCall}},
				}
				arrival := l.awaitToolResult(ctx, req.ID)
				if arrival.Err != nil {
					responses = append(responses, agent.MessageContent{Type: agent.ContentToolResponse, ID: req.ID, ToolErr: arrival.Err})
				} else {
					responses = append(responses, agent.MessageContent{Type: agent.ContentToolResponse, ID: req.ID, ToolResult: arrival.Result})
				}
			}

			for _, req := range enableExt {
				out <- agent.Message{
					Role:      agent.RoleAssistant,
					CreatedAt: time.Now().Unix(),
					Content:   []agent.MessageContent{{Type: agent.ContentEnableExtensionReq, ID: req.ID, ExtensionName: extensionNameArg(req)}},
				}
				responses = append(responses, l.handleEnableExtension(ctx, req))
			}

			toolMap := toolAnnotationIndex(tools)

			var auto []agent.MessageContent
			auto = append(auto, searchExt...)
			autoEligible, gated := l.splitByModePolicy(ctx, other, toolMap)
			auto = append(auto, autoEligible...)

			responses = append(responses, l.dispatchParallel(ctx, auto)...)
			responses = append(responses, l.applyGatedPolicy(ctx, out, gated)...)

			responses = orderByRequest(responses, reqs)

			userMsg := agent.Message{Role: agent.RoleUser, CreatedAt: time.Now().Unix(), Content: responses}
			out <- userMsg

			history = append(history, filtered, userMsg)
		}
	}()

	return out
}

func (l *Loop) buildSystemPrompt() string {
	sb := l.SystemPrompt
	if instr := l.Tools.Instructions(); instr != "" {
		sb += "\n\n" + instr
	}
	switch l.Mode {
	case agent.ModeChat:
		sb += "\n\nYou are in chat mode: tool calls will not be executed. Describe what you would do instead."
	case agent.ModeApprove, agent.ModeSmartApprove:
		sb += "\n\nSome tool calls require user confirmation before running."
	}
	return sb
}

// completeWithTruncation calls the provider, retrying up to 3 times with a
// progressively shrunk history when the response is ContextLengthExceeded,
// per §4.5/§4.6. *history is only mutated on a successful truncation.
func (l *Loop) completeWithTruncation(ctx context.Context, systemPrompt string, history *[]agent.Message, tools []agent.Tool) (agent.Message, agent.Usage, *provider.Error) {
	const maxAttempts = 3
	budget := l.Budget

	providerName, model := "", ""
	if l.Provider != nil {
		meta := l.Provider.Metadata()
		providerName, model = meta.Name, l.Provider.GetModelConfig().ModelName
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		msg, usage, perr := l.Provider.Complete(ctx, systemPrompt, *history, tools)
		elapsed := time.Since(start)
		if perr == nil {
			in, out := 0, 0
			if usage.InputTokens != nil {
				in = *usage.InputTokens
			}
			if usage.OutputTokens != nil {
				out = *usage.OutputTokens
			}
			l.Metrics.RecordProviderCall(providerName, model, elapsed, in, out)
			return msg, usage, nil
		}
		l.Metrics.RecordProviderError(providerName, model, string(perr.Kind))
		if perr.Kind != provider.ErrContextLengthExceeded || attempt >= maxAttempts || l.TokenCount == nil {
			return agent.Message{}, agent.Usage{}, perr
		}

		budget = int(float64(budget) * 0.9)
		counts := make([]int, len(*history))
		for i, m := range *history {
			counts[i] = l.TokenCount(m)
		}
		truncated, terr := truncate.Truncate(*history, counts, budget)
		if terr != nil {
			return agent.Message{}, agent.Usage{}, &provider.Error{Kind: provider.ErrContextLengthExceeded, Message: terr.Error(), Err: terr}
		}
		*history = truncated
	}
}

func terminalMessage(text string) agent.Message {
	return agent.Message{
		Role:      agent.RoleAssistant,
		CreatedAt: time.Now().Unix(),
		Content:   []agent.MessageContent{{Type: agent.ContentText, Text: text}},
	}
}

func toolRequests(content []agent.MessageContent) []agent.MessageContent {
	var out []agent.MessageContent
	for _, c := range content {
		if c.IsToolRequest() {
			out = append(out, c)
		}
	}
	return out
}

func idsOf(items []agent.MessageContent) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, c := range items {
		out[c.ID] = true
	}
	return out
}

// stripIDs returns msg with any content item whose id is in drop removed.
func stripIDs(msg agent.Message, drop map[string]bool) agent.Message {
	out := agent.Message{Role: msg.Role, CreatedAt: msg.CreatedAt}
	for _, c := range msg.Content {
		if c.ID != "" && drop[c.ID] {
			continue
		}
		out.Content = append(out.Content, c)
	}
	return out
}

func extensionNameArg(req agent.MessageContent) string {
	if req.ToolCall == nil {
		return ""
	}
	name, _ := req.ToolCall.Arguments["extension_name"].(string)
	return name
}

// partition splits the tool requests in one assistant turn into the four
// buckets §4.6 describes, consulting l.Tools.FrontendTools() for frontend
// membership (keyed by the tool's unprefixed name, per the data model).
func (l *Loop) partition(reqs []agent.MessageContent) (frontend, enableExt, searchExt, other []agent.MessageContent) {
	frontendNames := l.Tools.FrontendTools()
	for _, r := range reqs {
		if r.ToolCall == nil {
			other = append(other, r)
			continue
		}
		switch {
		case isFrontendTool(frontendNames, r.ToolCall.Name):
			frontend = append(frontend, r)
		case r.ToolCall.Name == ToolEnableExtension:
			enableExt = append(enableExt, r)
		case r.ToolCall.Name == ToolSearchExtensions:
			searchExt = append(searchExt, r)
		default:
			other = append(other, r)
		}
	}
	return
}

func isFrontendTool(frontendNames map[string]agent.FrontendTool, name string) bool {
	_, ok := frontendNames[name]
	return ok
}

// synthesizedToResponse wraps a permission.SynthesizedResponse (package
// permission's self-contained denial/skip text) in this package's
// MessageContent shape, keeping permission free of any agent import.
func synthesizedToResponse(r permission.SynthesizedResponse) agent.MessageContent {
	return agent.MessageContent{
		Type:       agent.ContentToolResponse,
		ID:         r.RequestID,
		ToolResult: []agent.Content{agent.TextContent(r.Text)},
	}
}

// handleEnableExtension implements scenario 4: always gated regardless of
// mode, looked up by name in the installer, and on success triggers a
// system-prompt/tool-list refresh on the loop's next iteration (which
// happens unconditionally, since GetPrefixedTools/Instructions are always
// recomputed at the top of Reply's loop).
func (l *Loop) handleEnableExtension(ctx context.Context, req agent.MessageContent) agent.MessageContent {
	decision := l.awaitConfirmation(ctx, req.ID)
	if decision.Decision != agent.DecisionAllowOnce && decision.Decision != agent.DecisionAlwaysAllow {
		return synthesizedToResponse(permission.SynthesizeDenial(req.ID))
	}

	extName := extensionNameArg(req)
	if err := l.Installer.Install(ctx, extName); err != nil {
		return agent.MessageContent{
			Type: agent.ContentToolResponse,
			ID:   req.ID,
			ToolErr: &agent.ToolError{
				Kind:    "execution_error",
				Message: fmt.Sprintf("Extension '%s' not found. %v", extName, err),
			},
		}
	}
	return agent.MessageContent{
		Type:       agent.ContentToolResponse,
		ID:         req.ID,
		ToolResult: []agent.Content{agent.TextContent(fmt.Sprintf("Extension '%s' enabled.", extName))},
	}
}

func toolAnnotationIndex(tools []agent.Tool) map[string]*agent.Tool {
	out := make(map[string]*agent.Tool, len(tools))
	for i := range tools {
		out[tools[i].Name] = &tools[i]
	}
	return out
}

// splitByModePolicy applies the mode rules from §4.6 to the "other" bucket:
// auto dispatches everything; approve/smart_approve gate everything except
// read_only_hint and remembered AlwaysAllow (smart_approve additionally
// auto-dispatches tools the classifier judges read-only); chat dispatches
// nothing and sends every request to the gated bucket, where
// applyGatedPolicy's chat-mode branch answers it with the skip text.
func (l *Loop) splitByModePolicy(ctx context.Context, reqs []agent.MessageContent, toolMap map[string]*agent.Tool) (auto, gated []agent.MessageContent) {
	if l.Mode == agent.ModeAuto {
		return reqs, nil
	}
	if l.Mode == agent.ModeChat {
		return nil, reqs
	}
	for _, r := range reqs {
		if r.ToolCall == nil {
			gated = append(gated, r)
			continue
		}
		tool := toolMap[r.ToolCall.Name]
		readOnly := tool != nil && tool.Annotations.ReadOnlyHint
		verdict := l.Gate.Classify(r.ToolCall.Name, r.ToolCall.Arguments, readOnly)
		if verdict == permission.VerdictAllow {
			auto = append(auto, r)
			continue
		}
		if l.Mode == agent.ModeSmartApprove && l.Classifier != nil {
			readOnly, err := l.Classifier.ClassifyReadOnly(ctx, *r.ToolCall)
			if err == nil && readOnly {
				auto = append(auto, r)
				continue
			}
		}
		gated = append(gated, r)
	}
	return
}

// applyGatedPolicy resolves the gated bucket: in chat mode every request is
// answered with the synthesized skip text and never dispatched; otherwise
// each request is announced with a ToolConfirmationRequest on out, then
// suspends on the confirmation channel, and is dispatched or denied based
// on the caller's decision.
func (l *Loop) applyGatedPolicy(ctx context.Context, out chan<- agent.Message, reqs []agent.MessageContent) []agent.MessageContent {
	if len(reqs) == 0 {
		return nil
	}
	if l.Mode == agent.ModeChat {
		skips := make([]agent.MessageContent, 0, len(reqs))
		for _, r := range reqs {
			name := ""
			if r.ToolCall != nil {
				name = r.ToolCall.Name
			}
			skips = append(skips, synthesizedToResponse(permission.SynthesizeChatModeSkip(r.ID, name)))
		}
		return skips
	}

	var toDispatch []agent.MessageContent
	responses := make([]agent.MessageContent, 0, len(reqs))
	for _, r := range reqs {
		if r.ToolCall == nil {
			responses = append(responses, agent.MessageContent{Type: agent.ContentToolResponse, ID: r.ID, ToolErr: &agent.ToolError{Kind: "invalid_parameters", Message: "malformed tool request"}})
			continue
		}

		out <- agent.Message{
			Role:      agent.RoleAssistant,
			CreatedAt: time.Now().Unix(),
			Content: []agent.MessageContent{{
				Type:             agent.ContentToolConfirmation,
				ID:               r.ID,
				ConfirmName:      r.ToolCall.Name,
				ConfirmArguments: r.ToolCall.Arguments,
			}},
		}

		decision := l.awaitConfirmation(ctx, r.ID)
		if decision.Decision == agent.DecisionDenyOnce {
			responses = append(responses, synthesizedToResponse(permission.SynthesizeDenial(r.ID)))
			continue
		}
		if decision.Decision == agent.DecisionAlwaysAllow {
			fp := permission.Fingerprint(r.ToolCall.Name, r.ToolCall.Arguments)
			l.Gate.Store().Remember(fp, permission.DecisionAlwaysAllow)
		}
		toDispatch = append(toDispatch, r)
	}

	responses = append(responses, l.dispatchParallel(ctx, toDispatch)...)
	return responses
}

// dispatchParallel launches every request concurrently and joins before
// returning, per §4.6's parallelism note.
func (l *Loop) dispatchParallel(ctx context.Context, reqs []agent.MessageContent) []agent.MessageContent {
	if len(reqs) == 0 {
		return nil
	}
	results := make([]agent.MessageContent, len(reqs))
	var wg sync.WaitGroup
	for i, r := range reqs {
		i, r := i, r
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = l.dispatchOne(ctx, r)
		}()
	}
	wg.Wait()
	return results
}

func (l *Loop) dispatchOne(ctx context.Context, req agent.MessageContent) agent.MessageContent {
	if req.ToolCall == nil {
		return agent.MessageContent{Type: agent.ContentToolResponse, ID: req.ID, ToolErr: &agent.ToolError{Kind: "invalid_parameters", Message: "malformed tool request"}}
	}
	start := time.Now()
	content, isError, err := l.Tools.DispatchToolCall(ctx, *req.ToolCall)
	l.Metrics.RecordToolCall(req.ToolCall.Name, time.Since(start))
	if err != nil {
		l.logger().Warn("tool dispatch failed", "tool", req.ToolCall.Name, "error", err)
		l.Metrics.RecordToolError(req.ToolCall.Name)
		return agent.MessageContent{Type: agent.ContentToolResponse, ID: req.ID, ToolErr: &agent.ToolError{Kind: "execution_error", Message: err.Error()}}
	}
	if isError {
		text := ""
		if len(content) > 0 {
			text = content[0].Text
		}
		l.Metrics.RecordToolError(req.ToolCall.Name)
		return agent.MessageContent{Type: agent.ContentToolResponse, ID: req.ID, ToolErr: &agent.ToolError{Kind: "execution_error", Message: text}}
	}
	return agent.MessageContent{Type: agent.ContentToolResponse, ID: req.ID, ToolResult: content}
}

// orderByRequest reorders responses to match the id order of reqs, the
// order their corresponding requests appeared in the prior assistant turn,
// per §5's ordering guarantee.
func orderByRequest(responses []agent.MessageContent, reqs []agent.MessageContent) []agent.MessageContent {
	byID := make(map[string]agent.MessageContent, len(responses))
	for _, r := range responses {
		byID[r.ID] = r
	}
	out := make([]agent.MessageContent, 0, len(reqs))
	for _, req := range reqs {
		if r, ok := byID[req.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// detachedContext strips ctx's cancellation but keeps its values, for work
// (session persistence) that must complete even if the caller drops the
// reply stream mid-iteration.
func detachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
