package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"streamchat/model"
	"streamchat/prompt"
	"streamchat/store"
	"streamchat/tools"
)

// ErrGenerationInFlight is returned when a chat already has a streaming
// ledger row; the previous generation must complete or be reconciled first.
var ErrGenerationInFlight = errors.New("a generation is already in flight for this chat")

// errCallerGone stops the step loop after a final checkpoint flush when the
// live sink has failed. The ledger row stays streaming for the reconciler.
var errCallerGone = errors.New("caller disconnected")

const defaultMaxSteps = 5

// Orchestrator drives one generation end to end: compose the prompt, resolve
// the tool set, run the bounded agentic step loop against the model, relay
// live events, checkpoint the ledger, and persist the assembled message.
type Orchestrator struct {
	model    ModelClient
	registry *tools.Registry
	ledger   *store.GenerationStore
	messages *store.MessageStore
	logger   *logrus.Logger

	maxSteps        int
	checkpointEvery time.Duration
	generationLimit time.Duration
}

func NewOrchestrator(mc ModelClient, registry *tools.Registry, ledger *store.GenerationStore,
	messages *store.MessageStore, logger *logrus.Logger, checkpointEvery, generationLimit time.Duration) *Orchestrator {
	return &Orchestrator{
		model:           mc,
		registry:        registry,
		ledger:          ledger,
		messages:        messages,
		logger:          logger,
		maxSteps:        defaultMaxSteps,
		checkpointEvery: checkpointEvery,
		generationLimit: generationLimit,
	}
}

// GenerateInput carries one generation request. History already includes the
// just-persisted user message. Sink may be nil (headless generation).
type GenerateInput struct {
	Chat            *model.Chat
	ChatKey         []byte
	Spec            model.ModelSpec
	Identity        model.Identity
	ReasoningEffort string
	History         []ChatTurn
	Sink            Sink
}

// checkpoint is the snapshot handed to the ledger writer goroutine.
type checkpoint struct {
	text       string
	reasoning  string
	firstChunk *time.Time
}

// Active reports whether the chat currently has a streaming ledger row.
// Callers use it to reject before committing to a response stream; the
// conditional insert inside Generate remains the authoritative gate.
func (o *Orchestrator) Active(chatID string) (bool, error) {
	gen, err := o.ledger.ActiveForChat(chatID)
	if err != nil {
		return false, err
	}
	return gen != nil, nil
}

// Generate runs the full state machine and returns the persisted assistant
// message. The supplied context should not be the request context: the
// generation must outlive a caller disconnect long enough to checkpoint.
func (o *Orchestrator) Generate(ctx context.Context, in GenerateInput) (*model.Message, error) {
	// composing
	system := prompt.Compose(prompt.Input{
		Verbosity:          in.Chat.Verbosity,
		UserName:           in.Identity.PersonaName,
		UserGender:         in.Identity.PersonaGender,
		Mode:               in.Chat.Mode,
		CustomInstructions: in.Chat.CustomInstructions,
	})
	toolSet := sortedTools(o.registry.Resolve(in.Chat.EnabledToolList()))

	now := time.Now()
	gen := &model.Generation{
		ID:              uuid.New().String(),
		ChatID:          in.Chat.ID,
		Model:           in.Spec.ID,
		ReasoningEffort: in.ReasoningEffort,
		Status:          model.GenerationStreaming,
		StartedAt:       now,
		LastUpdateAt:    now,
	}
	// The conditional insert is the one-streaming-row-per-chat gate; a
	// separate read-then-create would leave a window for two concurrent
	// requests to both pass.
	created, err := o.ledger.CreateIfIdle(gen)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrGenerationInFlight
	}

	ctx, cancel := context.WithTimeout(ctx, o.generationLimit)
	defer cancel()

	// The checkpoint writer runs beside the relay so a slow ledger write
	// never stalls delta delivery. Snapshots are latest-wins; a dropped
	// intermediate checkpoint only narrows the recovery window.
	ckCh := make(chan checkpoint, 1)
	ckDone := make(chan struct{})
	go func() {
		defer close(ckDone)
		for ck := range ckCh {
			if err := o.ledger.Checkpoint(gen.ID, ck.text, ck.reasoning, ck.firstChunk); err != nil {
				o.logger.Warnf("[gen %s] checkpoint write failed: %s", gen.ID, err)
			}
		}
	}()
	flushCheckpoints := func() {
		close(ckCh)
		<-ckDone
	}

	tracker := NewTelemetryTracker(gen.StartedAt)
	state, runErr := o.runSteps(ctx, in, gen, system, toolSet, tracker, ckCh)
	flushCheckpoints()

	if runErr != nil {
		if errors.Is(runErr, errCallerGone) {
			// Row stays streaming; the reconciler will finalize it.
			o.logger.Infof("[gen %s] caller disconnected, leaving ledger row for reconciliation", gen.ID)
			return nil, runErr
		}
		o.relay(in.Sink, StreamEvent{Kind: EventError, Error: runErr.Error()})
		if err := o.ledger.MarkError(gen.ID, runErr.Error()); err != nil {
			o.logger.Errorf("[gen %s] failed to record error status: %s", gen.ID, err)
		}
		return nil, runErr
	}

	// finalizing
	tracker.Finish()
	usage := state.usage()
	tps := tracker.TokensPerSecond(usage)
	parts := AssembleParts(state.steps)

	totalTokens := usage.TotalTokens
	msg := &model.Message{
		ID:              uuid.New().String(),
		ChatID:          in.Chat.ID,
		Role:            model.RoleAssistant,
		Model:           in.Spec.ID,
		TokensPerSecond: tps,
		Parts:           parts,
	}
	if in.Chat.IsLearningMode() {
		msg.SubMode = in.Chat.Mode
	}

	snapshot, _ := json.Marshal(parts)
	if err := o.ledger.Finalize(gen.ID, string(snapshot), tps, &totalTokens); err != nil {
		o.logger.Warnf("[gen %s] failed to snapshot final content: %s", gen.ID, err)
	}

	o.relay(in.Sink, StreamEvent{Kind: EventFinish, Finish: &FinishInfo{
		TokensPerSecond: tps,
		TotalTokens:     totalTokens,
		Steps:           len(state.steps),
	}})

	// persisted. The caller already received the content, so a storage
	// failure is an operator problem, not a generation failure: keep the
	// finalized row so a later reconciler pass can retry from the snapshot.
	if err := o.messages.Create(msg, in.ChatKey); err != nil {
		o.logger.Errorf("[gen %s] failed to persist assistant message: %s", gen.ID, err)
		return msg, nil
	}
	if _, err := o.ledger.Delete(gen.ID); err != nil {
		o.logger.Warnf("[gen %s] failed to delete ledger row: %s", gen.ID, err)
	}
	return msg, nil
}

// generationState folds immutable step records; nothing here is mutated after
// append.
type generationState struct {
	steps []StepRecord
}

func (g generationState) fold(rec StepRecord) generationState {
	steps := make([]StepRecord, len(g.steps), len(g.steps)+1)
	copy(steps, g.steps)
	return generationState{steps: append(steps, rec)}
}

func (g generationState) usage() TokenUsage {
	var total TokenUsage
	for _, s := range g.steps {
		total = total.add(s.Result.Usage)
	}
	return total
}

// runSteps executes the bounded agentic loop, relaying events as they arrive
// and offering checkpoints at the configured cadence (and immediately on the
// first delta of any kind).
func (o *Orchestrator) runSteps(ctx context.Context, in GenerateInput, gen *model.Generation,
	system string, toolSet []tools.Definition, tracker *TelemetryTracker, ckCh chan checkpoint) (generationState, error) {

	state := generationState{}
	defs := make(map[string]tools.Definition, len(toolSet))
	for _, d := range toolSet {
		defs[d.Name] = d
	}

	var (
		textSoFar      string
		reasoningSoFar string
		sinkAlive      = in.Sink != nil
		firstChunk     *time.Time
		lastCheckpoint time.Time
	)

	offer := func(ck checkpoint) {
		for {
			select {
			case ckCh <- ck:
				return
			default:
				// Replace the stale pending snapshot with the newer one.
				select {
				case <-ckCh:
				default:
				}
			}
		}
	}

	for stepN := 1; stepN <= o.maxSteps; stepN++ {
		req := StepRequest{
			Spec:            in.Spec,
			System:          system,
			History:         in.History,
			Steps:           state.steps,
			Tools:           toolSet,
			ReasoningEffort: in.ReasoningEffort,
		}
		stream := o.model.StreamStep(ctx, req)
		var stepText, stepReasoning string
		for ev := range stream.Events() {
			tracker.Observe(ev)
			if sinkAlive {
				if err := in.Sink.Send(ev); err != nil {
					sinkAlive = false
					o.logger.Warnf("[gen %s] sink send failed, continuing for checkpoint: %s", gen.ID, err)
				}
			}
			switch ev.Kind {
			case EventTextDelta:
				stepText += ev.Delta
			case EventReasoningDelta:
				stepReasoning += ev.Delta
			}

			// firstChunk rides along on every snapshot: replaced snapshots
			// would otherwise lose the arrival time, and the store only
			// writes it once.
			now := time.Now()
			if firstChunk == nil {
				first := now
				firstChunk = &first
				offer(checkpoint{text: textSoFar + stepText, reasoning: reasoningSoFar + stepReasoning, firstChunk: firstChunk})
				lastCheckpoint = now
			} else if now.Sub(lastCheckpoint) >= o.checkpointEvery {
				offer(checkpoint{text: textSoFar + stepText, reasoning: reasoningSoFar + stepReasoning, firstChunk: firstChunk})
				lastCheckpoint = now
			}
		}

		res, err := stream.Result()
		if err != nil {
			// Flush what we have before surfacing the failure.
			offer(checkpoint{text: textSoFar + stepText, reasoning: reasoningSoFar + stepReasoning, firstChunk: firstChunk})
			return state, fmt.Errorf("model stream failed at step %d: %w", stepN, err)
		}

		textSoFar += res.Text
		reasoningSoFar += res.Reasoning

		if in.Sink != nil && !sinkAlive {
			offer(checkpoint{text: textSoFar, reasoning: reasoningSoFar, firstChunk: firstChunk})
			return state, errCallerGone
		}

		if len(res.ToolCalls) == 0 {
			state = state.fold(StepRecord{Result: res})
			break
		}

		outcomes := o.executeToolCalls(ctx, defs, res.ToolCalls)
		for _, out := range outcomes {
			ev := StreamEvent{Kind: EventToolResult, ToolResult: &ToolResultInfo{
				ID:     out.Call.ID,
				Name:   out.Call.Name,
				Result: out.Result,
			}}
			tracker.Observe(ev)
			if sinkAlive {
				if err := in.Sink.Send(ev); err != nil {
					sinkAlive = false
				}
			}
		}
		state = state.fold(StepRecord{Result: res, Outcomes: outcomes})

		offer(checkpoint{text: textSoFar, reasoning: reasoningSoFar, firstChunk: firstChunk})
		lastCheckpoint = time.Now()
	}

	return state, nil
}

// executeToolCalls runs one step's tool calls concurrently; they are
// independent reads against external services. Outcomes keep call order
// regardless of completion order. Executors never return Go errors: a
// failure is an {"error": ...} payload.
func (o *Orchestrator) executeToolCalls(ctx context.Context, defs map[string]tools.Definition, calls []ToolCallRecord) []ToolOutcome {
	outcomes := make([]ToolOutcome, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		outcomes[i] = ToolOutcome{Call: call}
		g.Go(func() error {
			def, ok := defs[call.Name]
			if !ok {
				payload, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("unknown tool %q", call.Name)})
				outcomes[i].Result = payload
				outcomes[i].Errored = true
				return nil
			}
			payload, errored := def.Execute(gctx, call.Args)
			outcomes[i].Result = payload
			outcomes[i].Errored = errored
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) relay(sink Sink, ev StreamEvent) {
	if sink == nil {
		return
	}
	if err := sink.Send(ev); err != nil {
		o.logger.Debugf("relay after disconnect dropped %s event", ev.Kind)
	}
}

func sortedTools(defs map[string]tools.Definition) []tools.Definition {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]tools.Definition, 0, len(names))
	for _, name := range names {
		out = append(out, defs[name])
	}
	return out
}
