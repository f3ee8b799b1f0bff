package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ReflectEngine is a deterministic rule-based responder used when no external
// chat service is configured, and in tests. It mirrors simple statements back
// at the user and remembers the name each user introduces themselves with.
type ReflectEngine struct {
	mu    sync.Mutex
	names map[string]string // userID -> introduced name
}

// NewReflectEngine creates a rule-based engine with no external dependencies.
func NewReflectEngine() *ReflectEngine {
	return &ReflectEngine{names: make(map[string]string)}
}

// Name identifies the engine implementation.
func (e *ReflectEngine) Name() string { return "reflect" }

// reflections maps first-person phrases to second-person ones for mirroring.
var reflections = [][2]string{
	{"i am", "you are"},
	{"i'm", "you're"},
	{"my", "your"},
	{"i ", "you "},
	{"me", "you"},
}

// Respond applies a small rule table and falls back to mirroring the input.
func (e *ReflectEngine) Respond(_ context.Context, userID, content string) (string, error) {
	text := strings.ToLower(strings.TrimSpace(content))

	switch {
	case text == "":
		return "", nil

	case strings.HasPrefix(text, "my name is "):
		name := strings.TrimSpace(content[len("my name is "):])
		e.mu.Lock()
		e.names[userID] = name
		e.mu.Unlock()
		return fmt.Sprintf("Nice to meet you, %s.", name), nil

	case text == "what is my name?" || text == "what's my name?":
		e.mu.Lock()
		name := e.names[userID]
		e.mu.Unlock()
		if name == "" {
			return "You haven't told me your name yet.", nil
		}
		return fmt.Sprintf("Your name is %s.", name), nil

	case text == "hello" || text == "hi" || text == "hey":
		return "Hello! How can I help you today?", nil

	case text == "bye" || text == "goodbye":
		return "Goodbye!", nil

	case strings.HasSuffix(text, "?"):
		return "That's a good question. What do you think?", nil
	}

	// Mirror the statement back in second person.
	mirrored := text
	for _, r := range reflections {
		if strings.Contains(mirrored, r[0]) {
			mirrored = strings.ReplaceAll(mirrored, r[0], r[1])
			return fmt.Sprintf("Why do you say %s?", strings.TrimRight(mirrored, ".!")), nil
		}
	}

	return fmt.Sprintf("Tell me more about %s.", strings.TrimRight(text, ".!")), nil
}
