package tools

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shiksha-ai/shiksha/internal/eventlog"
	"github.com/shiksha-ai/shiksha/internal/live"
	"github.com/shiksha-ai/shiksha/internal/store"
)

// Tool names the model may invoke.
const (
	ToolUpdateProgress = "updateProgress"
	ToolCreateVisual   = "createVisual"
)

// Tool result strings sent back to the model.
const (
	resultGeneric         = "Success"
	resultProgressUpdated = "Progress updated successfully"
	resultVisualTriggered = "Visual generation triggered"
)

// visualTimeout bounds one background image generation.
const visualTimeout = 60 * time.Second

// ErrUnknownTool is logged when the model invokes a tool the dispatcher
// does not recognize. The call is still answered so the session keeps going.
var ErrUnknownTool = errors.New("unknown tool")

// ImageGenerator renders a prompt into a base64 image payload.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Dispatcher routes in-band tool calls to the profile store and the image
// generator. Every call gets a response; the session never stalls on a tool
// the dispatcher does not recognize.
type Dispatcher struct {
	store  *store.Store
	images ImageGenerator
	events *eventlog.Logger
	logger *log.Logger

	// OnProgress is invoked with the updated profile after each successful
	// progress update. OnVisual is invoked with the stored image once a
	// background generation completes. Both may be nil.
	OnProgress func(*store.StudentProfile)
	OnVisual   func(store.GeneratedImage)

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(s *store.Store, images ImageGenerator, events *eventlog.Logger, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		store:  s,
		images: images,
		events: events,
		logger: logger,
	}
}

// Declarations returns the tool schemas advertised at session setup.
func Declarations() []live.FunctionDeclaration {
	return []live.FunctionDeclaration{
		{
			Name:        ToolUpdateProgress,
			Description: "Update student points and concept mastery after an answer.",
			Parameters: &live.Schema{
				Type: "OBJECT",
				Properties: map[string]*live.Schema{
					"subject":         {Type: "STRING", Description: "Subject name (e.g. Science, Hindi)"},
					"points":          {Type: "NUMBER", Description: "Points to award (10 for correct, 5 for retry)"},
					"conceptName":     {Type: "STRING", Description: "Name of the concept practiced"},
					"masteryIncrease": {Type: "NUMBER", Description: "Percentage to increase mastery by (e.g. 10)"},
				},
				Required: []string{"subject", "points"},
			},
		},
		{
			Name:        ToolCreateVisual,
			Description: "Generate a visual diagram or illustration to help explain a concept.",
			Parameters: &live.Schema{
				Type: "OBJECT",
				Properties: map[string]*live.Schema{
					"prompt":  {Type: "STRING", Description: "Description of the image to generate"},
					"concept": {Type: "STRING", Description: "The concept being illustrated"},
				},
				Required: []string{"prompt", "concept"},
			},
		},
	}
}

// Dispatch answers a batch of tool calls. Responses come back in call order;
// visual generation continues in the background after the response is built.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, calls []live.FunctionCall) []live.FunctionResponse {
	responses := make([]live.FunctionResponse, 0, len(calls))
	for _, call := range calls {
		result := resultGeneric

		switch call.Name {
		case ToolUpdateProgress:
			result = d.handleUpdateProgress(ctx, sessionID, call)
		case ToolCreateVisual:
			result = d.handleCreateVisual(sessionID, call)
		default:
			d.logger.Printf("tools: %v: %q, answering generically", ErrUnknownTool, call.Name)
		}

		responses = append(responses, live.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"result": result},
		})
	}
	return responses
}

func (d *Dispatcher) handleUpdateProgress(ctx context.Context, sessionID string, call live.FunctionCall) string {
	subject := store.SubjectName(argString(call.Args, "subject"))
	if !subjectSupported(subject) {
		d.logger.Printf("tools: updateProgress for unsupported subject %q ignored", subject)
		return resultGeneric
	}

	points := int(argNumber(call.Args, "points"))
	conceptName := argString(call.Args, "conceptName")

	var masteryIncrease *int
	if raw, ok := call.Args["masteryIncrease"].(float64); ok {
		v := int(raw)
		masteryIncrease = &v
	}

	profile, err := d.store.UpdatePointsAndMastery(ctx, subject, points, conceptName, masteryIncrease)
	if err != nil {
		d.logger.Printf("tools: updateProgress failed: %v", err)
		return resultGeneric
	}

	d.events.LogAsync(sessionID, eventlog.EventToolCall, map[string]any{
		"tool":    ToolUpdateProgress,
		"subject": string(subject),
		"points":  points,
		"concept": conceptName,
	})
	if d.OnProgress != nil {
		d.OnProgress(profile)
	}
	return resultProgressUpdated
}

func (d *Dispatcher) handleCreateVisual(sessionID string, call live.FunctionCall) string {
	prompt := argString(call.Args, "prompt")
	concept := argString(call.Args, "concept")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), visualTimeout)
		defer cancel()

		data, err := d.images.Generate(ctx, prompt)
		if err != nil {
			d.logger.Printf("tools: visual generation failed: %v", err)
			return
		}
		img, err := d.store.SaveImage(ctx, concept, data)
		if err != nil {
			d.logger.Printf("tools: saving visual failed: %v", err)
			return
		}

		d.events.LogAsync(sessionID, eventlog.EventImageGenerated, map[string]any{
			"concept":    concept,
			"size_bytes": img.SizeBytes,
		})
		if d.OnVisual != nil {
			d.OnVisual(img)
		}
	}()

	return resultVisualTriggered
}

// Wait blocks until in-flight visual generations finish. Called on session
// teardown so background work never outlives the process.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func subjectSupported(subject store.SubjectName) bool {
	for _, s := range store.SupportedSubjects {
		if s == subject {
			return true
		}
	}
	return false
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argNumber(args map[string]any, key string) float64 {
	n, _ := args[key].(float64)
	return n
}
